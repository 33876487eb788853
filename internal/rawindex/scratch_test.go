package rawindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gzipi/gzipi/internal/codec"
)

func writeTestIndex(t *testing.T, dir string, entries []Entry) string {
	t.Helper()
	path := filepath.Join(dir, "index.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	defer f.Close()

	c := codec.Gzip{}
	mw := c.OpenMemberWriter(f)
	for _, e := range entries {
		if _, err := mw.Write(e.Encode()); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if _, err := mw.FinishMember(); err != nil {
		t.Fatalf("finish member: %v", err)
	}
	return path
}

func TestMaterializeAndReadEntryAt(t *testing.T) {
	dir := t.TempDir()
	entries := []Entry{
		{Key: []byte("apple"), Offset: 0, Length: 10},
		{Key: []byte("banana"), Offset: 10, Length: 20},
		{Key: []byte("cherry"), Offset: 30, Length: 5},
	}
	path := writeTestIndex(t, dir, entries)

	s, err := Materialize(path, codec.Gzip{}, dir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	defer s.Close()

	entry, end, err := s.ReadEntryAt(0)
	if err != nil {
		t.Fatalf("ReadEntryAt(0): %v", err)
	}
	if string(entry.Key) != "apple" {
		t.Errorf("got key %q, want apple", entry.Key)
	}
	if end <= 0 {
		t.Errorf("expected positive end offset, got %d", end)
	}
}

func TestMaterializeSpillsLargeIndexToDisk(t *testing.T) {
	dir := t.TempDir()
	var entries []Entry
	// Force the decompressed size comfortably past InMemoryThreshold.
	big := make([]byte, 64)
	for i := range big {
		big[i] = 'x'
	}
	for i := 0; i < InMemoryThreshold/64+10; i++ {
		entries = append(entries, Entry{Key: append([]byte{byte(i % 256)}, big...), Offset: int64(i), Length: 1})
	}
	path := writeTestIndex(t, dir, entries)

	s, err := Materialize(path, codec.Gzip{}, dir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	defer s.Close()

	if s.Size() <= InMemoryThreshold {
		t.Skip("synthetic index did not exceed the in-memory threshold; adjust fixture size")
	}
	if s.cleanup == nil {
		t.Error("expected an index larger than InMemoryThreshold to be spilled to a temp file")
	}
}

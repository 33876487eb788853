package indexbuilder

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/logging"
	"github.com/gzipi/gzipi/internal/rawindex"
)

func TestFinalizeProducesGloballySortedDeduplicatedIndex(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Codec: codec.Gzip{}, TempDir: dir, ChunkRecords: 10}, logging.Discard().WithField("test", true))

	// Two "members" worth of raw entries, unsorted across members
	// (as the repacker's raw index legitimately is), with a
	// cross-member duplicate of the same key at the same location.
	var raw strings.Builder
	for i := 50; i < 60; i++ {
		fmt.Fprintf(&raw, "key-%03d\t1000\t500\n", i)
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&raw, "key-%03d\t0\t500\n", i)
	}
	raw.WriteString("key-005\t0\t500\n") // exact duplicate, same location

	if err := b.AddStream(strings.NewReader(raw.String())); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	var out bytes.Buffer
	result, err := b.Finalize(&out)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.DistinctKeys != 20 {
		t.Errorf("DistinctKeys = %d, want 20", result.DistinctKeys)
	}
	if result.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", result.Duplicates)
	}

	rc, err := codec.Gzip{}.DecompressRange(bytes.NewReader(out.Bytes()), 0, int64(out.Len()))
	if err != nil {
		t.Fatalf("DecompressRange: %v", err)
	}
	defer rc.Close()
	var decoded bytes.Buffer
	decoded.ReadFrom(rc)

	var lastKey string
	lines := strings.Split(strings.TrimRight(decoded.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d output lines, want 20", len(lines))
	}
	for _, line := range lines {
		e, err := rawindex.Decode([]byte(line))
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		if string(e.Key) < lastKey {
			t.Fatalf("output not globally sorted: %q came after %q", e.Key, lastKey)
		}
		lastKey = string(e.Key)
	}
}

func TestFinalizeRejectsConflictingDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Codec: codec.Gzip{}, TempDir: dir, ChunkRecords: 100}, logging.Discard().WithField("test", true))

	raw := "dup\t0\t500\n" + "dup\t9999\t1\n" // same key, two different locations
	if err := b.AddStream(strings.NewReader(raw)); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	var out bytes.Buffer
	if _, err := b.Finalize(&out); err == nil {
		t.Fatal("expected an integrity error for a key mapping to two locations")
	}
}

func TestFinalizeForcesExternalSortAcrossManyChunks(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{Codec: codec.Gzip{}, TempDir: dir, ChunkRecords: 50, BloomFPRate: 0.01}, logging.Discard().WithField("test", true))

	const n = 5000
	for i := n - 1; i >= 0; i-- { // fed in descending order, across many spill chunks
		if err := b.Add(rawindex.Entry{Key: []byte(fmt.Sprintf("k-%05d", i)), Offset: int64(i), Length: 1}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var out bytes.Buffer
	result, err := b.Finalize(&out)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.DistinctKeys != n {
		t.Errorf("DistinctKeys = %d, want %d", result.DistinctKeys, n)
	}
	if b.Bloom() == nil {
		t.Fatal("expected a bloom filter to be built")
	}
	if !b.Bloom().MightContain([]byte("k-02500")) {
		t.Error("bloom filter should contain an indexed key")
	}
}

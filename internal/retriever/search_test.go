package retriever

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/rawindex"
)

func buildIndex(t *testing.T, dir string, keys []string) (*rawindex.Scratch, map[string]rawindex.Entry) {
	t.Helper()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	want := make(map[string]rawindex.Entry, len(sorted))
	path := filepath.Join(dir, "index.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := codec.Gzip{}
	mw := c.OpenMemberWriter(f)
	for i, k := range sorted {
		e := rawindex.Entry{Key: []byte(k), Offset: int64(i * 1000), Length: 500}
		want[k] = e
		if _, err := mw.Write(e.Encode()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := mw.FinishMember(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	f.Close()

	s, err := rawindex.Materialize(path, codec.Gzip{}, dir)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return s, want
}

func TestSearchFindsEveryKey(t *testing.T) {
	dir := t.TempDir()
	var keys []string
	for i := 0; i < 5000; i++ {
		keys = append(keys, fmt.Sprintf("key-%06d", i))
	}
	s, want := buildIndex(t, dir, keys)
	defer s.Close()

	for _, k := range keys {
		got, ok, err := Search(s, []byte(k))
		if err != nil {
			t.Fatalf("Search(%q): %v", k, err)
		}
		if !ok {
			t.Fatalf("Search(%q): expected hit, got miss", k)
		}
		w := want[k]
		if !bytes.Equal(got.Key, w.Key) || got.Offset != w.Offset || got.Length != w.Length {
			t.Fatalf("Search(%q) = %+v, want %+v", k, got, w)
		}
	}
}

func TestSearchTerminatesOnUnknownKeyWithoutHanging(t *testing.T) {
	dir := t.TempDir()
	var keys []string
	for i := 0; i < 2000; i++ {
		keys = append(keys, fmt.Sprintf("key-%06d", i))
	}
	s, _ := buildIndex(t, dir, keys)
	defer s.Close()

	unknown := []string{
		"key-000000a",   // just past a real key, lexically
		"\x00",          // sorts before everything
		"zzzzzzzzzzzzz", // sorts after everything
		"key-001000x",
	}

	for _, k := range unknown {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, ok, err := Search(s, []byte(k))
			if err != nil {
				t.Errorf("Search(%q): %v", k, err)
			}
			if ok {
				t.Errorf("Search(%q): expected miss, got hit", k)
			}
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Search(%q) did not terminate", k)
		}
	}
}

func TestSearchOnEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	s, _ := buildIndex(t, dir, nil)
	defer s.Close()

	_, ok, err := Search(s, []byte("anything"))
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty index")
	}
}

func TestSearchSmallIndexUsesLinearScanPath(t *testing.T) {
	dir := t.TempDir()
	keys := []string{"a", "c", "e", "g", "i"}
	s, want := buildIndex(t, dir, keys)
	defer s.Close()

	for _, k := range keys {
		got, ok, err := Search(s, []byte(k))
		w := want[k]
		if err != nil || !ok || !bytes.Equal(got.Key, w.Key) || got.Offset != w.Offset || got.Length != w.Length {
			t.Fatalf("Search(%q) = %+v, %v, %v", k, got, ok, err)
		}
	}
	for _, miss := range []string{"b", "d", "z", "0"} {
		_, ok, err := Search(s, []byte(miss))
		if err != nil {
			t.Fatalf("Search(%q): %v", miss, err)
		}
		if ok {
			t.Errorf("Search(%q): expected miss", miss)
		}
	}
}

func TestSearchManySortsHitsByOffset(t *testing.T) {
	dir := t.TempDir()
	var keys []string
	for i := 0; i < 500; i++ {
		keys = append(keys, fmt.Sprintf("key-%06d", i))
	}
	s, _ := buildIndex(t, dir, keys)
	defer s.Close()

	query := [][]byte{[]byte("key-000400"), []byte("key-000001"), []byte("key-000250"), []byte("missing")}
	hits, err := SearchMany(s, query)
	if err != nil {
		t.Fatalf("SearchMany: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].Offset > hits[i].Offset {
			t.Errorf("hits not sorted by offset: %+v", hits)
		}
	}
}

// Package indexbuilder implements component E: external merge sort
// of the raw, per-member index entries the repacker emits (sorted
// only within each member, not globally) into one globally sorted,
// compressed, deduplicated index stream.
//
// The external sort itself — buffer, sort, spill an LZ4-compressed
// chunk, repeat, then k-way merge the chunks with a manual min-heap —
// is carried over from the same design used to build a sparse
// block index from unsorted input records, generalized here to the
// variable-length `key\toffset\tlength` line shape instead of a
// fixed-width binary record.
package indexbuilder

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"

	"github.com/gzipi/gzipi/internal/bloom"
	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/rawindex"
)

// Config controls the external sort's memory/disk tradeoff and the
// codec used for the final compressed index.
type Config struct {
	Codec        codec.Codec
	TempDir      string
	ChunkRecords int     // entries buffered in memory before a spill; 0 uses DefaultChunkRecords
	BloomFPRate  float64 // 0 disables the bloom sidecar
}

const DefaultChunkRecords = 200_000

// Builder accumulates raw index entries from one or more sources
// (typically the repacker's raw-index stream, but equally an
// index-only re-scan of an already-compressed archive) and produces
// the final sorted, compressed, deduplicated index.
type Builder struct {
	cfg        Config
	buf        []rawindex.Entry
	chunkFiles []string
	total      int64
	log        *logrus.Entry
	filter     *bloom.Filter
}

func New(cfg Config, log *logrus.Entry) *Builder {
	if cfg.ChunkRecords <= 0 {
		cfg.ChunkRecords = DefaultChunkRecords
	}
	// The bloom filter is sized in Finalize, once the real total input
	// count is known — sizing it here for a fixed, arbitrary element
	// count would make cfg.BloomFPRate meaningless for any index whose
	// true key count differs from that guess.
	return &Builder{
		cfg: cfg,
		buf: make([]rawindex.Entry, 0, cfg.ChunkRecords),
		log: log,
	}
}

// Add buffers one raw index entry, spilling the buffer to a sorted,
// LZ4-compressed chunk file once it reaches ChunkRecords.
func (b *Builder) Add(e rawindex.Entry) error {
	key := make([]byte, len(e.Key))
	copy(key, e.Key)
	e.Key = key

	b.buf = append(b.buf, e)
	b.total++
	if len(b.buf) >= b.cfg.ChunkRecords {
		return b.flushChunk()
	}
	return nil
}

// AddStream reads `key\toffset\tlength\n` lines from r (the shape
// the repacker's raw-index output uses) and adds each as an entry.
func (b *Builder) AddStream(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := rawindex.Decode(line)
		if err != nil {
			return err
		}
		if err := b.Add(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return gzerr.IO(err, "indexbuilder: reading raw index stream")
	}
	return nil
}

func (b *Builder) flushChunk() error {
	if len(b.buf) == 0 {
		return nil
	}

	sort.Slice(b.buf, func(i, j int) bool { return rawindex.Compare(b.buf[i], b.buf[j]) < 0 })

	path := filepath.Join(b.cfg.TempDir, fmt.Sprintf("gzipi-sort-%d.lz4", len(b.chunkFiles)))
	f, err := os.Create(path)
	if err != nil {
		return gzerr.IO(err, "indexbuilder: creating sort spill chunk")
	}

	lw := lz4.NewWriter(f)
	bw := bufio.NewWriterSize(lw, 256*1024)
	for _, e := range b.buf {
		if _, err := bw.Write(e.Encode()); err != nil {
			bw.Flush()
			lw.Close()
			f.Close()
			return gzerr.IO(err, "indexbuilder: writing sort spill chunk")
		}
	}
	if err := bw.Flush(); err != nil {
		lw.Close()
		f.Close()
		return gzerr.IO(err, "indexbuilder: flushing sort spill chunk")
	}
	if err := lw.Close(); err != nil {
		f.Close()
		return gzerr.Codec(err, "indexbuilder: closing lz4 spill chunk")
	}
	if err := f.Close(); err != nil {
		return gzerr.IO(err, "indexbuilder: closing sort spill chunk")
	}

	b.chunkFiles = append(b.chunkFiles, path)
	b.buf = b.buf[:0]
	return nil
}

// Result summarizes a completed build.
type Result struct {
	DistinctKeys int64
	TotalInput   int64
	Duplicates   int64
}

// Finalize performs the k-way merge of every spilled chunk plus
// whatever remains buffered, writing the globally sorted, deduplicated
// index as one compressed frame to indexSink. When BloomFPRate is set,
// it also fills a bloom filter with every written key, which Bloom
// returns afterwards; Finalize does not write it anywhere. Consecutive equal keys with
// identical (offset, length) collapse to a single entry; consecutive
// equal keys with differing (offset, length) are a fatal integrity
// violation — the same key cannot legitimately live at two locations.
func (b *Builder) Finalize(indexSink io.Writer) (Result, error) {
	if err := b.flushChunk(); err != nil {
		return Result{}, err
	}
	defer b.cleanup()

	// b.total is now final (every Add/AddStream call happens before
	// Finalize by contract) and is an upper bound on the distinct key
	// count the merge below will actually keep, since duplicates only
	// ever collapse the bloom filter's true element count downward.
	// Sizing against it — rather than a constant unrelated to this
	// index's real size — keeps BloomFPRate meaningful whether the
	// index holds dozens or millions of keys.
	if b.cfg.BloomFPRate > 0 {
		b.filter = bloom.New(int(b.total), b.cfg.BloomFPRate)
	}

	readers := make([]*bufio.Reader, len(b.chunkFiles))
	files := make([]*os.File, len(b.chunkFiles))
	for i, path := range b.chunkFiles {
		f, err := os.Open(path)
		if err != nil {
			return Result{}, gzerr.IO(err, "indexbuilder: opening sort spill chunk")
		}
		files[i] = f
		readers[i] = bufio.NewReaderSize(lz4.NewReader(f), 64*1024)
	}
	defer func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}()

	mw := b.cfg.Codec.OpenMemberWriter(indexSink)

	h := make(mergeHeap, 0, len(readers))
	for i, r := range readers {
		if e, ok, err := readLine(r); err != nil {
			return Result{}, err
		} else if ok {
			h = append(h, mergeItem{entry: e, source: i})
		}
	}
	heapInit(h)

	var result Result
	result.TotalInput = b.total

	var lastKey []byte
	var lastEntry rawindex.Entry
	first := true

	for len(h) > 0 {
		item := heapPop(&h)
		e := item.entry

		if !first && bytes.Equal(e.Key, lastKey) {
			if e.Offset != lastEntry.Offset || e.Length != lastEntry.Length {
				return Result{}, gzerr.Integrity(nil, fmt.Sprintf(
					"indexbuilder: key %q maps to both (%d,%d) and (%d,%d)",
					e.Key, lastEntry.Offset, lastEntry.Length, e.Offset, e.Length))
			}
			result.Duplicates++
		} else {
			if _, err := mw.Write(e.Encode()); err != nil {
				return Result{}, gzerr.IO(err, "indexbuilder: writing merged index")
			}
			if b.filter != nil {
				b.filter.Add(e.Key)
			}
			result.DistinctKeys++
			lastKey = append(lastKey[:0], e.Key...)
			lastEntry = e
			first = false
		}

		if next, ok, err := readLine(readers[item.source]); err != nil {
			return Result{}, err
		} else if ok {
			heapPush(&h, mergeItem{entry: next, source: item.source})
		}
	}

	if _, err := mw.FinishMember(); err != nil {
		return Result{}, err
	}

	b.log.WithFields(logrus.Fields{
		"distinct_keys": result.DistinctKeys,
		"duplicates":    result.Duplicates,
		"total_input":   result.TotalInput,
	}).Info("indexbuilder: merge complete")

	return result, nil
}

// Bloom returns the accumulated bloom filter, or nil if disabled.
// Only meaningful after Finalize.
func (b *Builder) Bloom() *bloom.Filter { return b.filter }

func (b *Builder) cleanup() {
	for _, path := range b.chunkFiles {
		os.Remove(path)
	}
	b.chunkFiles = nil
}

func readLine(r *bufio.Reader) (rawindex.Entry, bool, error) {
	line, err := r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		if err == io.EOF {
			return rawindex.Entry{}, false, nil
		}
		return rawindex.Entry{}, false, gzerr.IO(err, "indexbuilder: reading sort spill chunk")
	}
	e, decErr := rawindex.Decode(line)
	if decErr != nil {
		return rawindex.Entry{}, false, decErr
	}
	return e, true, nil
}

package rawindex

import (
	"bytes"
	"io"
	"os"

	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
)

// InMemoryThreshold is the largest decompressed index size Materialize
// will hold entirely in memory rather than spilling to a temp file.
// The retriever only ever needs random byte-range reads, so either
// backing store satisfies io.ReaderAt identically.
const InMemoryThreshold = 8 << 20 // 8 MiB

// Scratch is the decompressed index, seekable and byte-addressable,
// as spec's retriever requires for binary search. Callers must Close
// it to release any temp file.
type Scratch struct {
	ra      io.ReaderAt
	size    int64
	cleanup func() error
}

func (s *Scratch) Size() int64 { return s.size }

func (s *Scratch) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// Materialize decompresses the single-frame index stream stored at
// indexPath (written by the index builder via codec.OpenMemberWriter)
// into a Scratch. Small indexes are held in memory; larger ones are
// spilled to a temp file in tempDir so the retriever never needs to
// hold the whole index resident.
func Materialize(indexPath string, c codec.Codec, tempDir string) (*Scratch, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, gzerr.IO(err, "rawindex: opening index file")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, gzerr.IO(err, "rawindex: stat'ing index file")
	}

	rc, err := c.DecompressRange(f, 0, st.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// Decompress at most one byte past the threshold to learn whether
	// the decompressed index fits in memory.
	head, err := io.ReadAll(io.LimitReader(rc, InMemoryThreshold+1))
	if err != nil {
		return nil, gzerr.Codec(err, "rawindex: decompressing index into memory")
	}
	if int64(len(head)) <= InMemoryThreshold {
		return &Scratch{ra: bytes.NewReader(head), size: int64(len(head))}, nil
	}

	tmp, err := os.CreateTemp(tempDir, "gzipi-index-*.raw")
	if err != nil {
		return nil, gzerr.IO(err, "rawindex: creating scratch temp file")
	}
	n, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), rc))
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, gzerr.Codec(err, "rawindex: decompressing index to scratch file")
	}

	return &Scratch{
		ra:   tmp,
		size: n,
		cleanup: func() error {
			tmp.Close()
			return os.Remove(tmp.Name())
		},
	}, nil
}

// NextLineStart returns the byte offset of the start of the first
// complete line beginning strictly after the first newline found at
// or after `at`. A byte offset landing mid-line is thus always
// resolved forward to the next entry's start, never backward — the
// standard line-oriented binary search probe.
//
// It returns ok=false if no newline exists at or after `at` (at sits
// inside or after the final, possibly unterminated, tail).
func (s *Scratch) NextLineStart(at int64) (start int64, ok bool, err error) {
	nl, found, err := s.findByte(at, '\n')
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}
	return nl + 1, true, nil
}

// ReadEntryAt decodes the complete line starting at byte offset
// start, returning the parsed Entry along with end, the offset of
// its terminating newline (so the caller can compute end+1, the
// start of the next entry).
func (s *Scratch) ReadEntryAt(start int64) (entry Entry, end int64, err error) {
	nl, found, err := s.findByte(start, '\n')
	if err != nil {
		return Entry{}, 0, err
	}
	if !found {
		nl = s.size
	}
	line := make([]byte, nl-start)
	if _, err := s.ra.ReadAt(line, start); err != nil && err != io.EOF {
		return Entry{}, 0, gzerr.IO(err, "rawindex: reading entry")
	}
	e, err := Decode(line)
	if err != nil {
		return Entry{}, 0, err
	}
	return e, nl, nil
}

// ReadRange returns the raw bytes in [from, to), for the small-scope
// linear-scan fallback once a binary search window has narrowed below
// the buffering threshold.
func (s *Scratch) ReadRange(from, to int64) ([]byte, error) {
	if to > s.size {
		to = s.size
	}
	if from >= to {
		return nil, nil
	}
	buf := make([]byte, to-from)
	if _, err := s.ra.ReadAt(buf, from); err != nil && err != io.EOF {
		return nil, gzerr.IO(err, "rawindex: reading scan range")
	}
	return buf, nil
}

const findByteChunk = 4096

// findByte scans forward from `at` for the first occurrence of b,
// reading in bounded chunks rather than byte-at-a-time to keep the
// syscall/ReadAt count low on large indexes.
func (s *Scratch) findByte(at int64, b byte) (pos int64, ok bool, err error) {
	buf := make([]byte, findByteChunk)
	for off := at; off < s.size; off += findByteChunk {
		n := findByteChunk
		if off+int64(n) > s.size {
			n = int(s.size - off)
		}
		nRead, err := s.ra.ReadAt(buf[:n], off)
		if err != nil && err != io.EOF {
			return 0, false, gzerr.IO(err, "rawindex: scanning for newline")
		}
		if idx := bytes.IndexByte(buf[:nRead], b); idx >= 0 {
			return off + int64(idx), true, nil
		}
	}
	return 0, false, nil
}

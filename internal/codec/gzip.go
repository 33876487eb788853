package codec

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/gzipi/gzipi/internal/gzerr"
)

// Gzip implements Codec over RFC 1952 gzip members. Each member in a
// gzipi archive is one complete gzip member; standard tools
// (gunzip, zcat) read the whole archive as a single concatenated
// stream without knowing anything about the index.
type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

type gzipMemberWriter struct {
	cw *countingWriter
	gw *gzip.Writer
}

func (w *gzipMemberWriter) Write(p []byte) (int, error) { return w.gw.Write(p) }

func (w *gzipMemberWriter) FinishMember() (int64, error) {
	if err := w.gw.Close(); err != nil {
		return 0, gzerr.Codec(err, "gzip: closing member")
	}
	return w.cw.n, nil
}

func (Gzip) OpenMemberWriter(sink io.Writer) MemberWriter {
	cw := &countingWriter{w: sink}
	gw, _ := gzip.NewWriterLevel(cw, gzip.DefaultCompression)
	return &gzipMemberWriter{cw: cw, gw: gw}
}

// ScanFrames walks concatenated gzip members by decoding each one
// with Multistream(false) and discarding the output, while tracking
// exactly how many source bytes each member consumed. Deflate streams
// carry no explicit length field, so finding a member's end requires
// running the inflate state machine to its terminal block — this
// loop does that without ever holding a member's decompressed bytes
// in memory.
//
// The source is handed to gzip.NewReader via a *bufio.Reader, which
// satisfies io.ByteReader; compress/gzip and compress/flate skip
// their own internal buffering layer whenever the source already
// implements io.ByteReader, so br.Buffered() always reflects exactly
// how far ahead of the logical read position the buffer has gone,
// letting cr.n - br.Buffered() recover the true frame boundary.
func (Gzip) ScanFrames(src io.ReadSeeker) ([]FrameRange, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, gzerr.IO(err, "gzip: seeking to start")
	}

	cr := &countingReader{r: src}
	br := bufio.NewReader(cr)

	var ranges []FrameRange
	pos := func() int64 { return cr.n - int64(br.Buffered()) }

	for {
		start := pos()
		zr, err := gzip.NewReader(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, gzerr.Codec(err, "gzip: invalid member header")
		}
		zr.Multistream(false)
		if _, err := io.Copy(io.Discard, zr); err != nil {
			return nil, gzerr.Codec(err, "gzip: decoding member body")
		}
		_ = zr.Close()

		end := pos()
		if end == start {
			// No forward progress; avoid spinning on a malformed tail.
			break
		}
		ranges = append(ranges, FrameRange{Offset: start, Length: end - start})
	}

	return ranges, nil
}

func (Gzip) DecompressRange(src io.ReaderAt, offset, length int64) (io.ReadCloser, error) {
	sr := io.NewSectionReader(src, offset, length)
	zr, err := gzip.NewReader(sr)
	if err != nil {
		return nil, gzerr.Codec(err, "gzip: opening member range")
	}
	// Multistream defaults to true: a range containing more than one
	// concatenated frame still decodes as a single record stream.
	return zr, nil
}

package codec

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/gzipi/gzipi/internal/gzerr"
)

// Zstd implements Codec over RFC 8878 zstd frames. Each member is one
// complete zstd frame with no dictionary and no cross-frame
// references, so it decodes independently of every other member.
type Zstd struct{}

func (Zstd) Name() string { return "zstd" }

type zstdMemberWriter struct {
	cw *countingWriter
	zw *zstd.Encoder
}

func (w *zstdMemberWriter) Write(p []byte) (int, error) { return w.zw.Write(p) }

func (w *zstdMemberWriter) FinishMember() (int64, error) {
	if err := w.zw.Close(); err != nil {
		return 0, gzerr.Codec(err, "zstd: closing member")
	}
	return w.cw.n, nil
}

func (Zstd) OpenMemberWriter(sink io.Writer) MemberWriter {
	cw := &countingWriter{w: sink}
	// Single-threaded encoding keeps block splitting deterministic
	// across runs, which the idempotence property depends on.
	zw, _ := zstd.NewWriter(cw,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	return &zstdMemberWriter{cw: cw, zw: zw}
}

func (Zstd) DecompressRange(src io.ReaderAt, offset, length int64) (io.ReadCloser, error) {
	sr := io.NewSectionReader(src, offset, length)
	dec, err := zstd.NewReader(sr)
	if err != nil {
		return nil, gzerr.Codec(err, "zstd: opening member range")
	}
	return &zstdDecoderCloser{dec}, nil
}

type zstdDecoderCloser struct {
	*zstd.Decoder
}

func (d *zstdDecoderCloser) Close() error {
	d.Decoder.Close()
	return nil
}

const (
	zstdMagic          = 0xFD2FB528
	skippableMagicLo    = 0x184D2A50
	skippableMagicHi    = 0x184D2A5F
)

// ScanFrames walks zstd frame headers and block headers structurally,
// computing each frame's length from its declared block sizes rather
// than by inflating anything — zstd's block-size-prefixed layout
// makes this possible without running the entropy decoder at all,
// unlike gzip's headerless deflate stream.
func (Zstd) ScanFrames(src io.ReadSeeker) ([]FrameRange, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, gzerr.IO(err, "zstd: seeking to start")
	}

	var ranges []FrameRange
	var pos int64

	for {
		start := pos
		magic, ok, err := readU32LE(src)
		if err != nil {
			return nil, gzerr.IO(err, "zstd: reading frame magic")
		}
		if !ok {
			break // clean EOF between frames
		}
		pos += 4

		if magic >= skippableMagicLo && magic <= skippableMagicHi {
			frameSize, _, err := readU32LE(src)
			if err != nil {
				return nil, gzerr.Codec(err, "zstd: reading skippable frame size")
			}
			pos += 4
			if _, err := src.Seek(int64(frameSize), io.SeekCurrent); err != nil {
				return nil, gzerr.IO(err, "zstd: skipping skippable frame")
			}
			pos += int64(frameSize)
			ranges = append(ranges, FrameRange{Offset: start, Length: pos - start})
			continue
		}

		if magic != zstdMagic {
			return nil, gzerr.Codec(nil, "zstd: bad frame magic")
		}

		n, err := skipStandardFrameHeaderAndBlocks(src)
		if err != nil {
			return nil, err
		}
		pos += n

		ranges = append(ranges, FrameRange{Offset: start, Length: pos - start})
	}

	return ranges, nil
}

// skipStandardFrameHeaderAndBlocks consumes the frame header, every
// data block (by its declared size, not its content), and the
// trailing content checksum if present, returning the number of
// bytes consumed after the 4-byte magic number.
func skipStandardFrameHeaderAndBlocks(r io.ReadSeeker) (int64, error) {
	var consumed int64

	var fhd [1]byte
	if _, err := io.ReadFull(r, fhd[:]); err != nil {
		return 0, gzerr.Codec(err, "zstd: reading frame header descriptor")
	}
	consumed++

	dictIDFlag := fhd[0] & 0x03
	checksumFlag := fhd[0]&0x04 != 0
	singleSegment := fhd[0]&0x20 != 0
	fcsFlag := fhd[0] >> 6

	if !singleSegment {
		// Window_Descriptor
		if _, err := r.Seek(1, io.SeekCurrent); err != nil {
			return 0, gzerr.IO(err, "zstd: skipping window descriptor")
		}
		consumed++
	}

	var dictIDLen int64
	switch dictIDFlag {
	case 0:
		dictIDLen = 0
	case 1:
		dictIDLen = 1
	case 2:
		dictIDLen = 2
	case 3:
		dictIDLen = 4
	}
	if dictIDLen > 0 {
		if _, err := r.Seek(dictIDLen, io.SeekCurrent); err != nil {
			return 0, gzerr.IO(err, "zstd: skipping dictionary id")
		}
		consumed += dictIDLen
	}

	var fcsLen int64
	switch {
	case singleSegment && fcsFlag == 0:
		fcsLen = 1
	case fcsFlag == 1:
		fcsLen = 2
	case fcsFlag == 2:
		fcsLen = 4
	case fcsFlag == 3:
		fcsLen = 8
	default:
		fcsLen = 0 // fcsFlag == 0 && !singleSegment: unknown content size
	}
	if fcsLen > 0 {
		if _, err := r.Seek(fcsLen, io.SeekCurrent); err != nil {
			return 0, gzerr.IO(err, "zstd: skipping frame content size")
		}
		consumed += fcsLen
	}

	for {
		var hdr [3]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, gzerr.Codec(err, "zstd: reading block header")
		}
		consumed += 3

		bits := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16
		lastBlock := bits&0x1 != 0
		blockType := (bits >> 1) & 0x3
		blockSize := int64(bits >> 3)

		var advance int64
		if blockType == 1 { // RLE_Block: one literal byte regardless of Block_Size
			advance = 1
		} else {
			advance = blockSize
		}

		if advance > 0 {
			if _, err := r.Seek(advance, io.SeekCurrent); err != nil {
				return 0, gzerr.IO(err, "zstd: skipping block body")
			}
			consumed += advance
		}

		if lastBlock {
			break
		}
	}

	if checksumFlag {
		if _, err := r.Seek(4, io.SeekCurrent); err != nil {
			return 0, gzerr.IO(err, "zstd: skipping content checksum")
		}
		consumed += 4
	}

	return consumed, nil
}

// readU32LE reads a little-endian uint32, reporting ok=false on a
// clean EOF with zero bytes read (the expected end of the archive).
func readU32LE(r io.Reader) (uint32, bool, error) {
	var buf [4]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return 0, false, nil
		}
		return 0, false, err
	}
	return binary.LittleEndian.Uint32(buf[:]), true, nil
}

// Package rawindex implements the index codec: the fixed line shape
// `<key>\t<offset>\t<length>\n` that both the raw per-member entries
// the repacker emits and the final sorted, compressed index use, plus
// materializing a compressed index stream into something seekable so
// the retriever can binary search it by byte offset.
package rawindex

import (
	"bytes"
	"strconv"

	"github.com/gzipi/gzipi/internal/gzerr"
)

// Entry is one `key -> (offset, length)` mapping.
type Entry struct {
	Key    []byte
	Offset int64
	Length int64
}

// Encode renders e as one newline-terminated index line. The
// returned slice is freshly allocated.
func (e Entry) Encode() []byte {
	buf := make([]byte, 0, len(e.Key)+2+20+20+2)
	buf = append(buf, e.Key...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, e.Offset, 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, e.Length, 10)
	buf = append(buf, '\n')
	return buf
}

// Decode parses one index line, with or without its trailing
// newline. line's backing storage is aliased by the returned Entry's
// Key — callers that retain the Entry beyond the lifetime of line's
// buffer must copy the key first.
func Decode(line []byte) (Entry, error) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))

	firstTab := bytes.IndexByte(line, '\t')
	if firstTab < 0 {
		return Entry{}, gzerr.Codec(nil, "rawindex: missing offset field")
	}
	rest := line[firstTab+1:]
	secondTab := bytes.IndexByte(rest, '\t')
	if secondTab < 0 {
		return Entry{}, gzerr.Codec(nil, "rawindex: missing length field")
	}

	key := line[:firstTab]
	offsetBytes := rest[:secondTab]
	lengthBytes := rest[secondTab+1:]

	offset, err := strconv.ParseInt(string(offsetBytes), 10, 64)
	if err != nil {
		return Entry{}, gzerr.Codec(err, "rawindex: malformed offset")
	}
	length, err := strconv.ParseInt(string(lengthBytes), 10, 64)
	if err != nil {
		return Entry{}, gzerr.Codec(err, "rawindex: malformed length")
	}
	if offset < 0 || length < 0 {
		return Entry{}, gzerr.Codec(nil, "rawindex: negative offset or length")
	}

	return Entry{Key: key, Offset: offset, Length: length}, nil
}

// Compare orders two entries the way the final index must be sorted:
// bytewise ascending on Key, then ascending on Offset as a
// tie-breaker for entries produced before dedup.
func Compare(a, b Entry) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}

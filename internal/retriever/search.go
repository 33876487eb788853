// Package retriever implements component F: resolving keys to archive
// byte ranges by binary-searching the materialized index, then
// fetching and decompressing the matching member(s), with a bloom
// filter to short-circuit misses and an LRU cache to avoid
// re-decompressing hot members.
package retriever

import (
	"bytes"
	"sort"

	"github.com/gzipi/gzipi/internal/rawindex"
)

// ScanThreshold (spec's B) is the window size below which binary
// search gives way to a buffered linear scan of the remaining range.
// 64 KiB comfortably covers a few hundred index lines, short enough
// that reading it in one shot beats two more probe round trips.
const ScanThreshold = 64 << 10

// Search performs the buffered binary search the retriever uses:
// probe the midpoint, resolve it forward to the start of the next
// complete line, and narrow [lo, hi) accordingly. It is guaranteed to
// terminate on an absent key rather than loop, because of two checks
// applied on every iteration:
//
//  1. After narrowing lo to the position right after a probe entry
//     that sorts before key, if lo has reached or passed hi the key
//     is absent.
//  2. If a probe resolves to an entry whose own start is no further
//     along than the current lo, narrowing hi to it would not shrink
//     the window — probing has exhausted its usefulness, and the
//     remaining bytes are scanned directly instead.
//
// Without rule 2, a window holding only one or two lines can resolve
// every midpoint back to the same entry at lo, and the loop would
// spin without ever advancing lo or hi.
func Search(s *rawindex.Scratch, key []byte) (rawindex.Entry, bool, error) {
	lo, hi := int64(0), s.Size()

probe:
	for hi-lo >= ScanThreshold {
		mid := lo + (hi-lo)/2

		entryStart, ok, err := s.NextLineStart(mid)
		if err != nil {
			return rawindex.Entry{}, false, err
		}
		if !ok || entryStart >= hi {
			break probe
		}

		entry, end, err := s.ReadEntryAt(entryStart)
		if err != nil {
			return rawindex.Entry{}, false, err
		}

		switch bytes.Compare(entry.Key, key) {
		case 0:
			return entry, true, nil
		case -1:
			lo = end + 1
			if lo >= hi {
				return rawindex.Entry{}, false, nil
			}
		case 1:
			if entryStart <= lo {
				break probe
			}
			hi = entryStart
		}
	}

	return scanRange(s, lo, hi, key)
}

// scanRange linearly scans the buffered [lo, hi) window for key, the
// small-scope fallback once the probing window has narrowed below
// ScanThreshold or run out of room to narrow further.
func scanRange(s *rawindex.Scratch, lo, hi int64, key []byte) (rawindex.Entry, bool, error) {
	buf, err := s.ReadRange(lo, hi)
	if err != nil {
		return rawindex.Entry{}, false, err
	}

	start := 0
	for start < len(buf) {
		nl := bytes.IndexByte(buf[start:], '\n')
		var line []byte
		if nl < 0 {
			line = buf[start:]
			start = len(buf)
		} else {
			line = buf[start : start+nl]
			start += nl + 1
		}
		if len(line) == 0 {
			continue
		}
		entry, err := rawindex.Decode(line)
		if err != nil {
			return rawindex.Entry{}, false, err
		}
		if bytes.Equal(entry.Key, key) {
			return entry, true, nil
		}
	}
	return rawindex.Entry{}, false, nil
}

// SearchMany resolves multiple keys against the same materialized
// index, returning hits only, sorted by ascending member offset so
// the caller can visit members in on-disk order.
func SearchMany(s *rawindex.Scratch, keys [][]byte) ([]rawindex.Entry, error) {
	var hits []rawindex.Entry
	for _, k := range keys {
		e, ok, err := Search(s, k)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Offset < hits[j].Offset })
	return hits, nil
}

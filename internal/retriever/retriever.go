package retriever

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gzipi/gzipi/internal/bloom"
	"github.com/gzipi/gzipi/internal/codec"
	"github.com/gzipi/gzipi/internal/gzerr"
	"github.com/gzipi/gzipi/internal/keyextract"
	"github.com/gzipi/gzipi/internal/lrucache"
	"github.com/gzipi/gzipi/internal/rawindex"
)

// Config configures a Retriever.
type Config struct {
	ArchivePath string
	IndexPath   string
	BloomPath   string // optional; empty disables the bloom pre-filter
	Codec       codec.Codec
	Extractor   *keyextract.Extractor // required: filters a fetched member down to the records a query actually asked for
	TempDir     string
	CacheBytes  int64 // member decompression cache budget; 0 disables caching
}

// Retriever resolves keys against a repacked archive and its index.
// It owns the materialized index scratch, the archive file handle,
// an optional bloom filter for fast negatives, and an LRU cache of
// decompressed member payloads keyed by member offset.
type Retriever struct {
	cfg     Config
	archive *os.File
	index   *rawindex.Scratch
	filter  *bloom.Filter
	cache   *lrucache.Cache
	log     *logrus.Entry
}

// Open materializes the index and opens the archive for random
// access. Callers must Close the returned Retriever.
func Open(cfg Config, log *logrus.Entry) (*Retriever, error) {
	if cfg.Extractor == nil {
		return nil, gzerr.Usage(nil, "retriever: Extractor is required to filter a member down to its queried records")
	}

	archive, err := os.Open(cfg.ArchivePath)
	if err != nil {
		return nil, gzerr.IO(err, "retriever: opening archive")
	}

	idx, err := rawindex.Materialize(cfg.IndexPath, cfg.Codec, cfg.TempDir)
	if err != nil {
		archive.Close()
		return nil, err
	}

	var filter *bloom.Filter
	if cfg.BloomPath != "" {
		filter, err = bloom.Load(cfg.BloomPath)
		if err != nil {
			log.WithError(err).Warn("retriever: bloom filter unavailable, skipping pre-filter")
			filter = nil
		}
	}

	var cache *lrucache.Cache
	if cfg.CacheBytes > 0 {
		cache = lrucache.New(cfg.CacheBytes)
	}

	return &Retriever{cfg: cfg, archive: archive, index: idx, filter: filter, cache: cache, log: log}, nil
}

func (r *Retriever) Close() error {
	idxErr := r.index.Close()
	archErr := r.archive.Close()
	if idxErr != nil {
		return idxErr
	}
	return archErr
}

// Get resolves key, fetches the member it belongs to, and returns
// only the record(s) within that member whose extracted key equals
// key — a member is the unit of storage and compression, not the
// unit of retrieval, and other records sharing it must not leak into
// the result. A miss (key absent) returns ok=false with a nil error —
// an unknown key is an expected outcome, not a failure.
func (r *Retriever) Get(key []byte) (payload []byte, ok bool, err error) {
	if r.filter != nil && !r.filter.MightContain(key) {
		return nil, false, nil
	}

	entry, found, err := Search(r.index, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	member, err := r.member(entry.Offset, entry.Length)
	if err != nil {
		return nil, false, err
	}

	matched := r.filterMember(member, [][]byte{key})
	payload, ok = matched[string(key)]
	return payload, ok, nil
}

// GetMany resolves multiple keys, groups the hits by the member they
// share, and visits each distinct member exactly once in ascending
// offset order — so a member queried by several keys at once is
// decompressed and scanned a single time, and each key's result is
// filtered down to that key's own record(s) rather than the whole
// member payload.
func (r *Retriever) GetMany(keys [][]byte) (map[string][]byte, error) {
	if r.filter != nil {
		filtered := keys[:0:0]
		for _, k := range keys {
			if r.filter.MightContain(k) {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	hits, err := SearchMany(r.index, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(hits))
	for i := 0; i < len(hits); {
		j := i + 1
		for j < len(hits) && hits[j].Offset == hits[i].Offset && hits[j].Length == hits[i].Length {
			j++
		}

		member, err := r.member(hits[i].Offset, hits[i].Length)
		if err != nil {
			return nil, err
		}

		want := make([][]byte, j-i)
		for k := i; k < j; k++ {
			want[k-i] = hits[k].Key
		}
		for k, v := range r.filterMember(member, want) {
			out[k] = v
		}

		i = j
	}
	return out, nil
}

// filterMember scans a decompressed member's records and returns,
// keyed by the matching entry in want, only the lines whose extracted
// key equals one of them — the "filter records whose extracted key is
// in the member's query subset" step every fetched member must pass
// through before its content leaves the Retriever. A key with more
// than one surviving record in the member (the repacker only
// collapses duplicate keys in the index, never in the archive itself)
// collects every one of them, in member order.
func (r *Retriever) filterMember(payload []byte, want [][]byte) map[string][]byte {
	matched := make(map[string][]byte, len(want))

	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		key, err := r.cfg.Extractor.Extract(line)
		if err != nil {
			continue
		}
		for _, w := range want {
			if bytes.Equal(key, w) {
				matched[string(w)] = append(append(matched[string(w)], line...), '\n')
				break
			}
		}
	}
	return matched
}

// member returns the decompressed bytes of the archive member at
// [offset, offset+length), serving from the LRU cache when present.
func (r *Retriever) member(offset, length int64) ([]byte, error) {
	cacheKey := memberCacheKey(offset)
	if r.cache != nil {
		if cached := r.cache.Get(cacheKey); cached != nil {
			return cached, nil
		}
	}

	rc, err := r.cfg.Codec.DecompressRange(r.archive, offset, length)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, gzerr.Codec(err, "retriever: decompressing member")
	}

	if r.cache != nil {
		r.cache.Put(cacheKey, data)
	}
	return data, nil
}

func memberCacheKey(offset int64) string {
	var buf [20]byte
	n := len(buf)
	if offset == 0 {
		return "0"
	}
	for offset > 0 {
		n--
		buf[n] = byte('0' + offset%10)
		offset /= 10
	}
	return string(buf[n:])
}

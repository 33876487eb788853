// Package bloom implements a space-efficient probabilistic set used
// by the retriever as a fast-negative pre-filter ahead of the
// buffered binary search: "definitely absent" short-circuits a query
// key without touching the index at all.
package bloom

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Filter is a fixed-size bit array probed with two CRC32-derived
// hashes combined via double hashing (Kirsch-Mitzenmacher), avoiding
// a dependency on a general-purpose hashing library for what is, in
// the end, two CRC32 passes over the key.
type Filter struct {
	bits      []byte
	size      int
	hashCount int
	count     int
}

// New sizes a filter for n expected elements at the given false
// positive rate using the standard optimal-parameter formulas:
// m = -n*ln(p)/ln(2)^2 bits, k = (m/n)*ln(2) hash functions.
func New(n int, fpRate float64) *Filter {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}

	m := int(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 1024 {
		m = 1024
	}
	m = ((m + 7) / 8) * 8

	k := int(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &Filter{
		bits:      make([]byte, m/8),
		size:      m,
		hashCount: k,
	}
}

func (f *Filter) positions(key []byte) (h1, h2 uint32) {
	h1 = crc32.ChecksumIEEE(key)

	var buf [256]byte
	reversed := appendReversed(buf[:0], key)
	reversed = append(reversed, "gzipi-bloom-salt"...)
	h2 = crc32.ChecksumIEEE(reversed)
	return
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.positions(key)
	for i := 0; i < f.hashCount; i++ {
		pos := combine(h1, h2, i, f.size)
		f.bits[pos/8] |= 1 << (pos % 8)
	}
	f.count++
}

// MightContain reports whether key might be present. false is a
// definitive answer ("not present"); true only means "maybe".
func (f *Filter) MightContain(key []byte) bool {
	h1, h2 := f.positions(key)
	for i := 0; i < f.hashCount; i++ {
		pos := combine(h1, h2, i, f.size)
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func combine(h1, h2 uint32, i, size int) int {
	combined := int(h1) + i*int(h2)
	if combined < 0 {
		combined = -combined
	}
	return combined % size
}

func appendReversed(dst, s []byte) []byte {
	start := len(dst)
	dst = append(dst, s...)
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}

// Count returns the number of elements added.
func (f *Filter) Count() int { return f.count }

// Serialize encodes the filter as a 24-byte header (size, hashCount,
// count, all big-endian int64) followed by the bit array.
func (f *Filter) Serialize() []byte {
	header := make([]byte, 24)
	binary.BigEndian.PutUint64(header[0:8], uint64(f.size))
	binary.BigEndian.PutUint64(header[8:16], uint64(f.hashCount))
	binary.BigEndian.PutUint64(header[16:24], uint64(f.count))
	return append(header, f.bits...)
}

// Deserialize reconstructs a Filter from Serialize's output.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < 24 {
		return nil, errors.New("bloom: truncated header")
	}
	size := int(binary.BigEndian.Uint64(data[0:8]))
	hashCount := int(binary.BigEndian.Uint64(data[8:16]))
	count := int(binary.BigEndian.Uint64(data[16:24]))

	if size <= 0 || hashCount <= 0 || len(data)-24 < size/8 {
		return nil, errors.New("bloom: corrupt header")
	}

	bits := make([]byte, size/8)
	copy(bits, data[24:])

	return &Filter{bits: bits, size: size, hashCount: hashCount, count: count}, nil
}

// Load reads a serialized filter from path. A missing sidecar file is
// not an error condition callers must special-case against — the
// retriever treats "no bloom file" the same as "no pre-filter".
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// Save writes the serialized filter to path.
func (f *Filter) Save(path string) error {
	return os.WriteFile(path, f.Serialize(), 0o644)
}

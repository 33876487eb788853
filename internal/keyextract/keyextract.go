// Package keyextract implements the pluggable, pure, per-record key
// extraction spec B describes: given one record line and a format
// descriptor, return the key bytes (or a FormatError).
package keyextract

import (
	"bytes"
	"encoding/json"

	"github.com/gzipi/gzipi/internal/gzerr"
)

// Format names the recognized record encodings.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatRaw  Format = "raw"
)

// Descriptor configures one extractor instance. Only the fields
// relevant to Format are consulted.
type Descriptor struct {
	Format    Format
	Field     string // json: object field name
	Column    int    // csv: 0-based column index
	Delimiter byte   // csv: delimiter byte, defaults to ','
}

// Extractor is a pure, stateless function from one record line (the
// newline already stripped) to its key bytes.
type Extractor struct {
	desc Descriptor
}

// New validates desc and returns an Extractor, or a UsageError if the
// descriptor is nonsensical (e.g. an empty JSON field name).
func New(desc Descriptor) (*Extractor, error) {
	switch desc.Format {
	case FormatJSON:
		if desc.Field == "" {
			return nil, gzerr.Usage(nil, "keyextract: --field is required for --format json")
		}
	case FormatCSV:
		if desc.Column < 0 {
			return nil, gzerr.Usage(nil, "keyextract: --column must be >= 0 for --format csv")
		}
		if desc.Delimiter == 0 {
			desc.Delimiter = ','
		}
	case FormatRaw:
		// no fields to validate
	default:
		return nil, gzerr.Usage(nil, "keyextract: unrecognized format "+string(desc.Format))
	}
	return &Extractor{desc: desc}, nil
}

// Extract returns the key for one record line. line must not include
// its trailing newline. The returned slice aliases line's storage for
// FormatCSV/FormatRaw and is only valid while line is; callers that
// need to retain it must copy it first.
func (e *Extractor) Extract(line []byte) ([]byte, error) {
	var key []byte
	var err error

	switch e.desc.Format {
	case FormatJSON:
		key, err = extractJSON(line, e.desc.Field)
	case FormatCSV:
		key, err = extractCSV(line, e.desc.Column, e.desc.Delimiter)
	case FormatRaw:
		key = line
	}
	if err != nil {
		return nil, err
	}

	return key, ValidateKey(key)
}

// ValidateKey enforces the one rule every format shares: the index
// line format is TAB-delimited and newline-terminated, so a key
// containing either byte would corrupt the index and must be
// rejected at extraction time rather than discovered later.
func ValidateKey(key []byte) error {
	if bytes.IndexByte(key, '\t') != -1 {
		return gzerr.Format(nil, "keyextract: key contains a TAB byte", true)
	}
	if bytes.IndexByte(key, '\n') != -1 {
		return gzerr.Format(nil, "keyextract: key contains a newline byte", true)
	}
	return nil
}

func extractJSON(line []byte, field string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return nil, gzerr.Format(err, "keyextract: record is not a JSON object", true)
	}

	raw, ok := obj[field]
	if !ok {
		return nil, gzerr.Format(nil, "keyextract: field "+field+" missing", true)
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, gzerr.Format(err, "keyextract: field "+field+" is not a string", true)
	}

	return []byte(value), nil
}

// extractCSV splits on delimiter with no quote awareness — the
// format deliberately omits quoting support, so a delimiter inside a
// quoted field is still treated as a column boundary.
func extractCSV(line []byte, column int, delimiter byte) ([]byte, error) {
	start := 0
	col := 0
	for i := 0; i < len(line); i++ {
		if line[i] != delimiter {
			continue
		}
		if col == column {
			return line[start:i], nil
		}
		col++
		start = i + 1
	}
	if col == column {
		return line[start:], nil
	}
	return nil, gzerr.Format(nil, "keyextract: column index out of range", true)
}

package keyextract

import (
	"errors"
	"testing"

	"github.com/gzipi/gzipi/internal/gzerr"
)

func requireSkippable(t *testing.T, err error) {
	t.Helper()
	var ge *gzerr.Error
	if !errors.As(err, &ge) || !ge.Skipped {
		t.Errorf("expected a skippable FormatError, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	e, err := New(Descriptor{Format: FormatJSON, Field: "id"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key, err := e.Extract([]byte(`{"id":"abc123","other":5}`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(key) != "abc123" {
		t.Errorf("got %q, want abc123", key)
	}
}

func TestExtractJSONMissingFieldIsSkippable(t *testing.T) {
	e, _ := New(Descriptor{Format: FormatJSON, Field: "id"})
	_, err := e.Extract([]byte(`{"other":5}`))
	if err == nil {
		t.Fatal("expected an error for a missing field")
	}
	requireSkippable(t, err)
}

func TestExtractJSONNonStringFieldIsSkippable(t *testing.T) {
	e, _ := New(Descriptor{Format: FormatJSON, Field: "id"})
	_, err := e.Extract([]byte(`{"id":5}`))
	if err == nil {
		t.Fatal("expected an error for a non-string field")
	}
	requireSkippable(t, err)
}

func TestExtractCSV(t *testing.T) {
	e, err := New(Descriptor{Format: FormatCSV, Column: 1, Delimiter: ','})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, err := e.Extract([]byte("a,bravo,c"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(key) != "bravo" {
		t.Errorf("got %q, want bravo", key)
	}
}

func TestExtractCSVColumnOutOfRange(t *testing.T) {
	e, _ := New(Descriptor{Format: FormatCSV, Column: 5, Delimiter: ','})
	if _, err := e.Extract([]byte("a,b,c")); err == nil {
		t.Fatal("expected an error for an out-of-range column")
	}
}

func TestExtractRaw(t *testing.T) {
	e, err := New(Descriptor{Format: FormatRaw})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, err := e.Extract([]byte("the-whole-line"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(key) != "the-whole-line" {
		t.Errorf("got %q", key)
	}
}

func TestValidateKeyRejectsTabAndNewline(t *testing.T) {
	if err := ValidateKey([]byte("clean")); err != nil {
		t.Errorf("unexpected error for clean key: %v", err)
	}
	if err := ValidateKey([]byte("has\ttab")); err == nil {
		t.Error("expected error for key containing a TAB")
	}
	if err := ValidateKey([]byte("has\nnewline")); err == nil {
		t.Error("expected error for key containing a newline")
	}
}

func TestNewRejectsInvalidDescriptors(t *testing.T) {
	if _, err := New(Descriptor{Format: FormatJSON, Field: ""}); err == nil {
		t.Error("expected error for empty JSON field")
	}
	if _, err := New(Descriptor{Format: FormatCSV, Column: -1}); err == nil {
		t.Error("expected error for negative CSV column")
	}
	if _, err := New(Descriptor{Format: "xml"}); err == nil {
		t.Error("expected error for unrecognized format")
	}
}

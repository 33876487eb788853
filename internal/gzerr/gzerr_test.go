package gzerr

import (
	"errors"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{IO(nil, "x"), 1},
		{Codec(nil, "x"), 1},
		{Format(nil, "x", true), 1},
		{Usage(nil, "x"), 2},
		{Integrity(nil, "x"), 3},
		{KeyNotFound, 0},
		{nil, 0},
		{errors.New("plain error"), 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestFormatSkippedFlag(t *testing.T) {
	skip := Format(nil, "skippable", true)
	if !skip.Skipped {
		t.Error("expected Skipped=true")
	}
	fatal := Format(nil, "fatal", false)
	if fatal.Skipped {
		t.Error("expected Skipped=false")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	e := IO(cause, "wrapped")
	if errors.Unwrap(e) == nil {
		t.Error("expected Unwrap to expose a cause")
	}
}

// Package logging centralizes gzipi's structured logging setup.
// It replaces the ad-hoc fmt.Println progress banners the indexing
// pipeline this package is adapted from used, with logrus fields that
// a caller can route, level-filter, or format as JSON.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger that writes human-readable text to stderr by
// default, matching the rest of the pack's convention of keeping
// stdout reserved for record output.
func New(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   false,
		TimestampFormat: "15:04:05.000",
	})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Discard returns a logger that drops everything, for tests and
// library callers that don't want gzipi's progress output.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Reporter is a minimal progress-reporting surface, satisfied by both
// *logrus.Logger and *logrus.Entry via WithFields(...).Info. The
// repacker, index builder, and retriever do not use it: their
// constructors take a *logrus.Entry directly.
type Reporter interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

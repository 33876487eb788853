// Package opener abstracts the filesystem operations the CLI needs
// behind an interface, so the archive, raw-index and index outputs of
// the repack and index commands go through atomic write-then-rename
// rather than being written in place (the optional bloom sidecar is
// written directly, not through this package). A future object-store backed Opener (S3,
// GCS) can implement the same interface without any caller change —
// this package only ships the local filesystem implementation.
package opener

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gzipi/gzipi/internal/gzerr"
)

// Opener is the minimal contract a storage backend must satisfy for
// gzipi to read archives/indexes and write them back atomically.
type Opener interface {
	OpenRead(path string) (io.ReadCloser, error)
	OpenWrite(path string) (WriteCloser, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

// WriteCloser is a Closer whose Close commits the write. Callers that
// want to discard a partial write call Discard instead of Close.
type WriteCloser interface {
	io.Writer
	Close() error
	Discard() error
}

// Local implements Opener over the local filesystem.
type Local struct{}

func (Local) OpenRead(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gzerr.IO(err, "opener: opening "+path)
	}
	return f, nil
}

// OpenWrite writes to a temp file beside path and renames it into
// place on Close, so a crash or error mid-write never leaves a
// truncated or partially-written file at path.
func (Local) OpenWrite(path string) (WriteCloser, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, gzerr.IO(err, "opener: creating temp file for "+path)
	}
	return &localWriteCloser{f: tmp, finalPath: path}, nil
}

func (Local) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return gzerr.IO(err, "opener: renaming "+oldPath+" to "+newPath)
	}
	return nil
}

func (Local) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return gzerr.IO(err, "opener: removing "+path)
	}
	return nil
}

type localWriteCloser struct {
	f         *os.File
	finalPath string
	done      bool
}

func (w *localWriteCloser) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *localWriteCloser) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return gzerr.IO(err, "opener: closing temp file for "+w.finalPath)
	}
	if err := os.Rename(w.f.Name(), w.finalPath); err != nil {
		os.Remove(w.f.Name())
		return gzerr.IO(err, "opener: committing "+w.finalPath)
	}
	return nil
}

func (w *localWriteCloser) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.f.Name())
}

package emberon

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// pendingFile is a destination written under a temporary name in the
// target directory. It only appears at its final path after Commit, so a
// failed encode or decode never leaves a partial file behind.
type pendingFile struct {
	*os.File
	path      string
	committed bool
}

func createPending(path string) (*pendingFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "create destination %s", path)
	}
	return &pendingFile{File: f, path: path}, nil
}

// Commit flushes the file and moves it into place.
func (p *pendingFile) Commit() error {
	if err := p.Sync(); err != nil {
		p.Discard()
		return errors.Wrapf(err, "sync destination %s", p.path)
	}
	if err := p.Close(); err != nil {
		p.Discard()
		return errors.Wrapf(err, "close destination %s", p.path)
	}
	if err := os.Chmod(p.Name(), 0o644); err != nil {
		p.Discard()
		return errors.Wrapf(err, "chmod destination %s", p.path)
	}
	if err := os.Rename(p.Name(), p.path); err != nil {
		p.Discard()
		return errors.Wrapf(err, "rename destination %s", p.path)
	}
	p.committed = true
	return nil
}

// Discard removes the temporary file. Safe to defer; a no-op after Commit.
func (p *pendingFile) Discard() {
	if p.committed {
		return
	}
	p.Close()
	os.Remove(p.Name())
}

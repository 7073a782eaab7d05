//go:build windows

package daemon

import (
	"errors"
	"os"
	"path/filepath"
)

// runLock is the exclusive-create singleton guard. Windows has no flock, so
// the file's existence is the lock and release removes it.
type runLock struct {
	f    *os.File
	path string
}

func takeRunLock(path string) (*runLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New("tallerd is already running (lock held)")
		}
		return nil, err
	}
	return &runLock{f: f, path: path}, nil
}

func (l *runLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
}

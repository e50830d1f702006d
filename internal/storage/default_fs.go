package storage

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

type defaultFS struct{}

func (defaultFS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (defaultFS) Open(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) OpenDir(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) Remove(name string) error {
	err := os.Remove(name)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (defaultFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (defaultFS) PathJoin(elem ...string) string {
	return filepath.Join(elem...)
}

// flockLock adapts github.com/gofrs/flock to the Lock interface. The
// directory lock is exclusive, advisory, and process-scoped: it prevents two
// Open calls against the same directory from running concurrently, matching
// the single-process-per-database-directory assumption of the rest of the
// engine.
type flockLock struct {
	fl *flock.Flock
}

func (defaultFS) Lock(name string) (Lock, error) {
	fl := flock.New(name)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, os.ErrExist
	}
	return &flockLock{fl: fl}, nil
}

func (l *flockLock) Close() error {
	return l.fl.Unlock()
}

// Package storage defines the filesystem abstraction (vfs) the engine
// reads and writes through: the WAL, manifest, sstables and LOCK file never
// touch os.* directly, only FS and File. This lets the on-disk format be
// exercised against an in-memory filesystem in tests without touching disk.
package storage

import (
	"io"
	"os"
)

// File is the interface for a file, analogous to *os.File.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Sync() error
}

// Lock is a held file lock, released by Close.
type Lock interface {
	io.Closer
}

// FS is the filesystem interface the engine depends on.
type FS interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	OpenDir(name string) (File, error)
	Remove(name string) error
	Rename(oldname, newname string) error
	MkdirAll(dir string, perm os.FileMode) error
	Lock(name string) (Lock, error)
	List(dir string) ([]string, error)
	Stat(name string) (os.FileInfo, error)
	PathJoin(elem ...string) string
}

// Default is the real operating-system filesystem.
var Default FS = defaultFS{}

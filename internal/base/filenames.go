package base

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// FileNum is a file number: a draw from the single 64-bit counter persisted
// in the manifest, used to name every log, sstable and manifest file.
type FileNum uint64

// FileType enumerates the kinds of files that live in a database directory.
type FileType int

const (
	FileTypeLog FileType = iota
	FileTypeLock
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
	FileTypeInfoLog
)

// MakeFilename renders the canonical on-disk name for a file of the given
// type and number, matching spec.md §6's filesystem layout.
func MakeFilename(dirname string, fileType FileType, fileNum FileNum) string {
	switch fileType {
	case FileTypeLog:
		return filepath.Join(dirname, fmt.Sprintf("%06d.log", fileNum))
	case FileTypeLock:
		return filepath.Join(dirname, "LOCK")
	case FileTypeTable:
		return filepath.Join(dirname, fmt.Sprintf("%06d.sst", fileNum))
	case FileTypeManifest:
		return filepath.Join(dirname, fmt.Sprintf("MANIFEST-%06d", fileNum))
	case FileTypeCurrent:
		return filepath.Join(dirname, "CURRENT")
	case FileTypeInfoLog:
		return filepath.Join(dirname, "LOG")
	default:
		panic("strata: unknown file type")
	}
}

// ParseFilename extracts the type and, where applicable, the file number
// from the base name of a path.
func ParseFilename(filename string) (fileType FileType, fileNum FileNum, ok bool) {
	filename = filepath.Base(filename)
	switch {
	case filename == "CURRENT":
		return FileTypeCurrent, 0, true
	case filename == "LOCK":
		return FileTypeLock, 0, true
	case filename == "LOG" || filename == "LOG.old":
		return FileTypeInfoLog, 0, true
	case strings.HasPrefix(filename, "MANIFEST-"):
		u, err := strconv.ParseUint(filename[len("MANIFEST-"):], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeManifest, FileNum(u), true
	default:
		i := strings.IndexByte(filename, '.')
		if i < 0 {
			return 0, 0, false
		}
		u, err := strconv.ParseUint(filename[:i], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		switch filename[i+1:] {
		case "sst", "ldb":
			return FileTypeTable, FileNum(u), true
		case "log":
			return FileTypeLog, FileNum(u), true
		}
		return 0, 0, false
	}
}

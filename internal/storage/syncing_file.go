package storage

// syncingFile wraps a writable File and calls Sync periodically as bytes are
// written, rather than only at Close, smoothing out the write-back of dirty
// pages instead of producing latency spikes when the OS flushes the backlog.
// Unlike the classic implementation this portable version does not use
// sync_file_range and simply calls the full Sync once bytesPerSync bytes
// have accumulated since the last one.
type syncingFile struct {
	File
	bytesPerSync int64
	written      int64
	synced       int64
}

// NewSyncingFile wraps f so that Write periodically syncs. If bytesPerSync is
// zero or negative, f is returned unwrapped.
func NewSyncingFile(f File, bytesPerSync int) File {
	if bytesPerSync <= 0 {
		return f
	}
	return &syncingFile{File: f, bytesPerSync: int64(bytesPerSync)}
}

func (f *syncingFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	if err != nil {
		return n, err
	}
	f.written += int64(n)
	if f.written-f.synced >= f.bytesPerSync {
		if err := f.File.Sync(); err != nil {
			return n, err
		}
		f.synced = f.written
	}
	return n, nil
}

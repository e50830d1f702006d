package manifest

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/internal/storage"
)

// VersionSet owns the single current Version and appends every change to it
// as a VersionEdit in the MANIFEST log, so the set of live sstables survives
// a restart. All of its methods except CurrentVersion require the caller to
// hold the external mutex passed to Init (normally DB.mu), matching the
// classic versionSet's "protected by DB.mu" convention.
type VersionSet struct {
	dirname string
	fs      storage.FS
	cmp     base.Compare
	cmpName string
	mu      *sync.Mutex

	versions VersionList
	current  *Version

	nextFileNum base.FileNum
	lastSeqNum  base.SeqNum

	manifestFileNum base.FileNum
	manifestFile    storage.File
	manifestWriter  *record.Writer

	obsolete func([]base.FileNum)
}

// Init prepares the set; call Create for a brand new database or Load to
// replay an existing MANIFEST.
func (vs *VersionSet) Init(dirname string, fs storage.FS, cmp base.Compare, cmpName string, mu *sync.Mutex, obsolete func([]base.FileNum)) {
	vs.dirname = dirname
	vs.fs = fs
	vs.cmp = cmp
	vs.cmpName = cmpName
	vs.mu = mu
	vs.obsolete = obsolete
	vs.versions.Init(mu)
}

// Create initializes a brand new, empty database: an empty Version and a
// fresh MANIFEST recording the comparator name.
func (vs *VersionSet) Create() error {
	vs.nextFileNum = 1
	v := &Version{}
	vs.append(v)

	manifestNum := vs.getNextFileNum()
	if err := vs.createManifestFile(manifestNum); err != nil {
		return err
	}
	ve := &VersionEdit{
		ComparatorName: vs.cmpName,
		NextFileNumber: vs.nextFileNum,
		LastSeqNum:     base.SeqNumZero,
	}
	if err := vs.writeManifestEdit(ve); err != nil {
		return err
	}
	return vs.setCurrentManifest(manifestNum)
}

// Load replays the MANIFEST named by CURRENT, rebuilding the current
// Version from the accumulated edits.
func (vs *VersionSet) Load() error {
	current, err := vs.fs.Open(vs.fs.PathJoin(vs.dirname, "CURRENT"))
	if err != nil {
		return err
	}
	manifestName, err := readCurrentFile(current)
	current.Close()
	if err != nil {
		return err
	}

	f, err := vs.fs.Open(vs.fs.PathJoin(vs.dirname, manifestName))
	if err != nil {
		return err
	}
	defer f.Close()

	_, manifestFileNum, ok := base.ParseFilename(manifestName)
	if !ok {
		return base.CorruptionErrorf("manifest: invalid CURRENT contents %q", manifestName)
	}

	var bve BulkVersionEdit
	rr := record.NewReader(f, manifestFileNum)
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var ve VersionEdit
		if err := ve.Decode(rec); err != nil {
			return err
		}
		bve.Accumulate(&ve)
	}
	if bve.comparatorName != "" && bve.comparatorName != vs.cmpName {
		return base.InvalidArgumentErrorf("manifest: comparer %q does not match recorded comparer %q", vs.cmpName, bve.comparatorName)
	}

	v, err := bve.Apply(nil, vs.cmp)
	if err != nil {
		return err
	}
	for _, files := range v.Files {
		for _, fm := range files {
			fm.Ref()
		}
	}
	vs.append(v)
	vs.nextFileNum = bve.nextFileNumber
	vs.lastSeqNum = bve.lastSeqNum
	vs.manifestFileNum = manifestFileNum

	// Continue in a fresh MANIFEST that starts with a snapshot of the
	// recovered state, so later edits have a log to be appended to.
	manifestNum := vs.getNextFileNum()
	if err := vs.createManifestFile(manifestNum); err != nil {
		return err
	}
	snapshot := &VersionEdit{ComparatorName: vs.cmpName, NextFileNumber: vs.nextFileNum, LastSeqNum: vs.lastSeqNum}
	for level, files := range v.Files {
		for _, fm := range files {
			snapshot.NewFiles = append(snapshot.NewFiles, NewFileEntry{Level: level, Meta: *fm})
		}
	}
	if err := vs.writeManifestEdit(snapshot); err != nil {
		return err
	}
	return vs.setCurrentManifest(manifestNum)
}

// LogAndApply builds the next Version by applying ve to the current one,
// appends ve to the MANIFEST, and installs the new Version as current. This
// is the single mutation point for the entire file-level state of the
// database: flushes and compactions both go through it.
func (vs *VersionSet) LogAndApply(ve *VersionEdit) error {
	if ve.LastSeqNum == 0 {
		ve.LastSeqNum = vs.lastSeqNum
	}
	ve.NextFileNumber = vs.nextFileNum
	var bve BulkVersionEdit
	bve.Accumulate(ve)
	v, err := bve.Apply(vs.current, vs.cmp)
	if err != nil {
		return err
	}
	for level := range bve.Added {
		for _, fm := range bve.Added[level] {
			fm.Ref()
		}
	}

	if err := vs.writeManifestEdit(ve); err != nil {
		return err
	}

	vs.append(v)
	if ve.LastSeqNum != 0 {
		vs.lastSeqNum = ve.LastSeqNum
	}
	return nil
}

func (vs *VersionSet) append(v *Version) {
	v.obsolete = vs.obsolete
	v.Ref()
	vs.versions.PushBack(v)
	if vs.current != nil {
		vs.current.Unref()
	}
	vs.current = v
}

// CurrentVersion returns the current Version with an added reference; the
// caller must Unref it once done.
func (vs *VersionSet) CurrentVersion() *Version {
	vs.current.Ref()
	return vs.current
}

func (vs *VersionSet) getNextFileNum() base.FileNum {
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

// GetNextFileNum allocates and returns the next file number.
func (vs *VersionSet) GetNextFileNum() base.FileNum { return vs.getNextFileNum() }

// MarkFileNumUsed bumps nextFileNum past num if necessary, used when
// replaying WAL file numbers found on disk at Open.
func (vs *VersionSet) MarkFileNumUsed(num base.FileNum) {
	if num >= vs.nextFileNum {
		vs.nextFileNum = num + 1
	}
}

// LastSeqNum returns the last sequence number recorded in the manifest.
func (vs *VersionSet) LastSeqNum() base.SeqNum { return vs.lastSeqNum }

// SetLastSeqNum records the highest sequence number assigned so far, kept
// in memory between LogAndApply calls (e.g. immediately after a batch is
// sequenced, before the next flush writes it to the manifest).
func (vs *VersionSet) SetLastSeqNum(seq base.SeqNum) {
	if seq > vs.lastSeqNum {
		vs.lastSeqNum = seq
	}
}

func (vs *VersionSet) createManifestFile(num base.FileNum) error {
	name := base.MakeFilename(vs.dirname, base.FileTypeManifest, num)
	f, err := vs.fs.Create(name)
	if err != nil {
		return err
	}
	vs.manifestFile = f
	vs.manifestWriter = record.NewWriter(f)
	vs.manifestFileNum = num
	return nil
}

func (vs *VersionSet) writeManifestEdit(ve *VersionEdit) error {
	var buf bytes.Buffer
	if err := ve.Encode(&buf); err != nil {
		return err
	}
	if err := vs.manifestWriter.WriteRecord(buf.Bytes()); err != nil {
		return err
	}
	return vs.manifestFile.Sync()
}

// setCurrentManifest atomically repoints CURRENT at manifest number num,
// via the classic write-to-temp-file-then-rename dance (so a crash never
// leaves CURRENT pointing at a manifest that doesn't exist).
func (vs *VersionSet) setCurrentManifest(num base.FileNum) error {
	newFilename := vs.fs.PathJoin(vs.dirname, "CURRENT")
	oldFilename := fmt.Sprintf("%s.%06d.dbtmp", newFilename, num)
	_ = vs.fs.Remove(oldFilename)
	f, err := vs.fs.Create(oldFilename)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s\n", base.MakeFilename("", base.FileTypeManifest, num)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return vs.fs.Rename(oldFilename, newFilename)
}

func readCurrentFile(f storage.File) (string, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	s := string(bytes.TrimSpace(data))
	if s == "" {
		return "", base.CorruptionErrorf("manifest: CURRENT file is empty")
	}
	return s, nil
}

// Close flushes and closes the MANIFEST file.
func (vs *VersionSet) Close() error {
	if vs.manifestWriter != nil {
		if err := vs.manifestWriter.Close(); err != nil {
			return err
		}
	}
	return nil
}

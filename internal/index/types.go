// Package index implements the in-memory multi-index file table: the
// primary by_id map plus the by_name_ci/by_extension/by_full_path_ci
// secondary indexes, guarded by a single RW lock, following the shape of
// gcsfuse's fs.fileSystem struct (a single mutex-guarded struct holding
// several maps keyed different ways, with INVARIANT comments documenting
// cross-map consistency).
package index

import "time"

// FileEntry is one MFT record's worth of data: a file or directory.
type FileEntry struct {
	ID         uint64
	ParentID   uint64
	Name       string
	Size       uint64
	IsDir      bool
	Attributes uint32
	Created    time.Time
	Modified   time.Time
	Accessed   time.Time
}

// Extension returns the lower-cased, dot-stripped extension of Name, or ""
// if Name has no dot or ends with one.
func (e FileEntry) Extension() string {
	return extensionOf(e.Name)
}

func extensionOf(name string) string {
	dot := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			dot = i
			break
		}
		if name[i] == '\\' || name[i] == '/' {
			return ""
		}
	}
	if dot < 0 || dot == len(name)-1 {
		return ""
	}
	return foldLower(name[dot+1:])
}

// VolumeState carries the per-volume metadata persisted alongside the
// cache: identity of the volume and the journal position the store
// reflects.
type VolumeState struct {
	DriveLetter        byte
	VolumeSerial       uint64
	BytesPerCluster    uint32
	MftStartLcn        uint64
	BytesPerFileRecord uint32

	LastAppliedUSN int64
	JournalID      uint64
}

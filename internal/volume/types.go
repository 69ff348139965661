// Package volume provides raw NTFS volume access: opening the volume
// device, querying its layout, reading the MFT, and querying/reading the
// USN change journal. A windows.go implementation (build-tagged) issues the
// real DeviceIoControl calls; a fallback.go implementation (also
// build-tagged, for !windows) walks the filesystem instead, so the module
// stays importable and unit-testable off Windows, per spec.md §6's
// acknowledged portable fallback.
package volume

import "context"

// Handle is an opaque, platform-specific handle to an opened volume.
type Handle interface {
	// Close releases the underlying OS handle.
	Close() error
	// NtfsMode reports whether this handle has real raw-volume/USN access
	// (true) or is the directory-walk fallback (false), matching the
	// search_info.ntfs_mode surface spec.md §6 names.
	NtfsMode() bool
	// DriveLetter is the single uppercase ASCII letter this handle opened.
	DriveLetter() byte
}

// VolumeData is the result of querying NTFS volume layout.
type VolumeData struct {
	BytesPerCluster        uint32
	MftValidLengthClusters uint64
	MftStartLcn            uint64
	BytesPerFileRecord     uint32
	VolumeSerial           uint64
}

// JournalData is the result of querying the USN change journal.
type JournalData struct {
	JournalID  uint64
	FirstUSN   int64
	NextUSN    int64
	MaxSize    uint64
	AllocDelta int64
}

// USNReason is a bitmask of USN_REASON_* flags.
type USNReason uint32

const (
	ReasonFileCreate      USNReason = 0x00000100
	ReasonFileDelete      USNReason = 0x00000200
	ReasonRenameOldName   USNReason = 0x00001000
	ReasonRenameNewName   USNReason = 0x00002000
	ReasonDataExtend      USNReason = 0x00000002
	ReasonDataTruncate    USNReason = 0x00000004
	ReasonBasicInfoChange USNReason = 0x00008000
	ReasonClose           USNReason = 0x80000000
)

// DefaultReasonMask covers the reasons spec.md §4.5 requires at minimum.
const DefaultReasonMask = ReasonFileCreate | ReasonFileDelete | ReasonRenameOldName |
	ReasonRenameNewName | ReasonDataExtend | ReasonDataTruncate | ReasonBasicInfoChange | ReasonClose

// USNRecord is one parsed change-journal record.
type USNRecord struct {
	USN         int64
	FileRefID   uint64
	ParentRefID uint64
	Reason      USNReason
	Name        string
	Attributes  uint32
}

// Reader is the engine-facing interface for raw volume access. Every
// method maps host OS errors onto the mfterrors taxonomy.
type Reader interface {
	// Open opens the volume as \\.\X: with read access and shared
	// read/write. fails(AccessDenied, NotFound, NotNtfs).
	Open(ctx context.Context, driveLetter byte) (Handle, error)
	// QueryVolumeData issues the NTFS volume-data control code.
	// fails(IoError).
	QueryVolumeData(ctx context.Context, h Handle) (VolumeData, error)
	// ReadMFTBytes reads mft_valid_length_clusters * bytes_per_cluster
	// bytes beginning at the MFT start, segmenting internally as needed.
	ReadMFTBytes(ctx context.Context, h Handle, vd VolumeData) ([]byte, error)
	// QueryUSNJournal issues FSCTL_QUERY_USN_JOURNAL.
	QueryUSNJournal(ctx context.Context, h Handle) (JournalData, error)
	// ReadUSNRecords issues FSCTL_READ_USN_JOURNAL into buf and returns the
	// parsed records plus the new next_usn to resume from. It does not wait
	// for new records: a read with nothing pending returns no records, and
	// the caller decides how long to wait before reading again.
	ReadUSNRecords(ctx context.Context, h Handle, startUSN int64, reasonMask USNReason, buf []byte) ([]USNRecord, int64, error)
	// ReadFileRecord reads the single raw MFT record for fileRefID, for the
	// journal watcher's out-of-band size refresh (USN records don't carry
	// size). fails(IoError, NotNtfs).
	ReadFileRecord(ctx context.Context, h Handle, fileRefID uint64, bytesPerRecord uint32) ([]byte, error)
}

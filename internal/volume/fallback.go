//go:build !windows

package volume

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// fallbackHandle backs the portable, non-NTFS directory-walk mode spec.md
// §6 acknowledges: same FileEntry shape, no USN watcher, ntfs_mode=false.
type fallbackHandle struct {
	root        string
	driveLetter byte
	nextID      uint64
}

func (h *fallbackHandle) Close() error      { return nil }
func (h *fallbackHandle) NtfsMode() bool    { return false }
func (h *fallbackHandle) DriveLetter() byte { return h.driveLetter }

// FallbackReader walks the local filesystem with path/filepath.WalkDir
// instead of reading the raw MFT. This file is built only for non-Windows
// hosts; on Windows NewReader always returns the raw-volume reader, and a
// missing privilege surfaces as AccessDenied rather than a fallback walk.
type FallbackReader struct{}

// NewReader returns the platform Reader. On non-Windows this is always the
// fallback; production builds select windows.go via the build tag.
func NewReader() Reader { return FallbackReader{} }

func (FallbackReader) Open(ctx context.Context, driveLetter byte) (Handle, error) {
	root := fallbackRootFor(driveLetter)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mfterrors.Wrap(mfterrors.KindNotFound, "open", "no such path for fallback drive", err)
		}
		if os.IsPermission(err) {
			return nil, mfterrors.Wrap(mfterrors.KindAccessDenied, "open", "permission denied", err)
		}
		return nil, mfterrors.Wrap(mfterrors.KindIoError, "open", "stat failed", err)
	}
	if !info.IsDir() {
		return nil, mfterrors.New(mfterrors.KindNotNtfs, "open", "fallback root is not a directory")
	}
	return &fallbackHandle{root: root, driveLetter: driveLetter, nextID: 1}, nil
}

func (FallbackReader) QueryVolumeData(ctx context.Context, h Handle) (VolumeData, error) {
	return VolumeData{BytesPerCluster: 4096, BytesPerFileRecord: 1024}, nil
}

// ReadMFTBytes has no meaning in directory-walk mode; mftcore.Engine's scan
// sees a handle whose NtfsMode is false and calls Walk directly instead.
func (FallbackReader) ReadMFTBytes(ctx context.Context, h Handle, vd VolumeData) ([]byte, error) {
	return nil, mfterrors.New(mfterrors.KindNotNtfs, "read_mft_bytes", "raw MFT access unavailable in fallback mode")
}

func (FallbackReader) QueryUSNJournal(ctx context.Context, h Handle) (JournalData, error) {
	return JournalData{}, mfterrors.New(mfterrors.KindNotNtfs, "query_usn_journal", "USN journal unavailable in fallback mode")
}

func (FallbackReader) ReadUSNRecords(ctx context.Context, h Handle, startUSN int64, reasonMask USNReason, buf []byte) ([]USNRecord, int64, error) {
	return nil, 0, mfterrors.New(mfterrors.KindNotNtfs, "read_usn_records", "USN journal unavailable in fallback mode")
}

func (FallbackReader) ReadFileRecord(ctx context.Context, h Handle, fileRefID uint64, bytesPerRecord uint32) ([]byte, error) {
	return nil, mfterrors.New(mfterrors.KindNotNtfs, "read_file_record", "raw MFT access unavailable in fallback mode")
}

// FallbackEntry mirrors index.FileEntry's shape without importing the
// index package from this low-level reader (kept dependency-light;
// mftcore.Engine translates).
type FallbackEntry struct {
	ID         uint64
	ParentID   uint64
	Name       string
	Size       uint64
	IsDir      bool
	Attributes uint32
	Modified   time.Time
}

// Walk performs the acknowledged directory-walk fallback, assigning
// synthetic, stable-for-the-walk ids via a monotonic counter, and returns
// every file/directory under h's root.
func Walk(ctx context.Context, h Handle) ([]FallbackEntry, error) {
	fh, ok := h.(*fallbackHandle)
	if !ok {
		return nil, mfterrors.New(mfterrors.KindInvalidArgument, "walk", "not a fallback handle")
	}

	const rootID = 5 // index.RootID, spelled out to keep this package free of an index import
	var counter uint64 = fh.nextID
	if counter < rootID {
		counter = rootID
	}
	ids := make(map[string]uint64)
	ids[fh.root] = rootID // synthetic root id, matches index.RootID's role

	var entries []FallbackEntry
	entries = append(entries, FallbackEntry{ID: rootID, ParentID: rootID, Name: string(fh.driveLetter) + ":", IsDir: true})

	err := filepath.WalkDir(fh.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries, don't abort the walk
		}
		if path == fh.root {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		parent := filepath.Dir(path)
		parentID, ok := ids[parent]
		if !ok {
			parentID = rootID
		}

		counter++
		id := counter
		ids[path] = id

		info, statErr := d.Info()
		var size uint64
		var modified time.Time
		if statErr == nil {
			if !info.IsDir() {
				size = uint64(info.Size())
			}
			modified = info.ModTime()
		}

		entries = append(entries, FallbackEntry{
			ID:       id,
			ParentID: parentID,
			Name:     d.Name(),
			Size:     size,
			IsDir:    d.IsDir(),
			Modified: modified,
		})
		return nil
	})
	if err != nil {
		return nil, mfterrors.Wrap(mfterrors.KindIoError, "walk", "directory walk failed", err)
	}
	return entries, nil
}

func fallbackRootFor(driveLetter byte) string {
	if driveLetter == 0 {
		return "."
	}
	return string(driveLetter) + ":" + string(filepath.Separator)
}

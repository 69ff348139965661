package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

const filePrefix = "mft_cache_"

func binPath(dir string, timestamp int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.bin", filePrefix, timestamp))
}

func metaPath(dir string, timestamp int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.meta", filePrefix, timestamp))
}

// Save reads store's ids and then each entry, each call under the store's
// shared read lock; the lock is not held across the whole save, so a
// mutation made while Save runs may or may not be in the written version.
// Both files are written via write-temp-then-rename, data first then
// metadata last (spec §4.6 step 3), using renameio for the atomic replace.
func Save(dir string, drive byte, store *index.Store, journalID uint64, lastAppliedUSN int64, createdUnixSeconds, timestamp int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "mkdir cache dir", err)
	}

	ids := store.AllIDs()
	var totalSize uint64

	binTmp, err := renameio.NewPendingFile(binPath(dir, timestamp))
	if err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "create .bin temp file", err)
	}
	defer binTmp.Cleanup()

	for _, id := range ids {
		entry, ok := store.LookupByID(id)
		if !ok {
			continue
		}
		if err := EncodeEntry(binTmp, entry); err != nil {
			return mfterrors.Wrap(mfterrors.KindIoError, "save", "encode entry", err)
		}
		totalSize += entry.Size
	}
	if err := binTmp.CloseAtomicallyReplace(); err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "commit .bin", err)
	}

	metaTmp, err := renameio.NewPendingFile(metaPath(dir, timestamp))
	if err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "create .meta temp file", err)
	}
	defer metaTmp.Cleanup()

	meta := Meta{
		Created:        createdUnixSeconds,
		Drive:          drive,
		JournalID:      journalID,
		LastAppliedUSN: lastAppliedUSN,
		FileCount:      uint64(len(ids)),
		TotalSize:      totalSize,
	}
	if err := EncodeMeta(metaTmp, meta); err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "encode meta", err)
	}
	if err := metaTmp.CloseAtomicallyReplace(); err != nil {
		return mfterrors.Wrap(mfterrors.KindIoError, "save", "commit .meta", err)
	}

	return nil
}

// Version is one candidate cache version found on disk.
type Version struct {
	Timestamp int64
	BinPath   string
	MetaPath  string
}

// List returns every complete (.bin and .meta both present) version in
// dir, sorted by timestamp ascending. A .meta without a matching .bin is a
// torn write and is skipped, per spec §4.6.
func List(dir string) ([]Version, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, mfterrors.Wrap(mfterrors.KindIoError, "list", "read cache dir", err)
	}

	metaTimestamps := map[int64]bool{}
	binTimestamps := map[int64]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) {
			continue
		}
		switch {
		case strings.HasSuffix(name, ".meta"):
			if ts, ok := parseTimestamp(name, ".meta"); ok {
				metaTimestamps[ts] = true
			}
		case strings.HasSuffix(name, ".bin"):
			if ts, ok := parseTimestamp(name, ".bin"); ok {
				binTimestamps[ts] = true
			}
		}
	}

	var versions []Version
	for ts := range metaTimestamps {
		if !binTimestamps[ts] {
			continue // torn write: .meta without .bin
		}
		versions = append(versions, Version{Timestamp: ts, BinPath: binPath(dir, ts), MetaPath: metaPath(dir, ts)})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Timestamp < versions[j].Timestamp })
	return versions, nil
}

func parseTimestamp(name, suffix string) (int64, bool) {
	core := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), suffix)
	ts, err := strconv.ParseInt(core, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Prune deletes all but the maxVersions newest complete versions in dir.
// Errors removing individual files are collected but don't stop the pass;
// the caller should log them, not propagate (spec §4.6 step 4).
func Prune(dir string, maxVersions int) []error {
	if maxVersions <= 0 {
		maxVersions = 3
	}
	versions, err := List(dir)
	if err != nil {
		return []error{err}
	}
	if len(versions) <= maxVersions {
		return nil
	}

	var errs []error
	toRemove := versions[:len(versions)-maxVersions]
	for _, v := range toRemove {
		if err := os.Remove(v.BinPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		if err := os.Remove(v.MetaPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errs
}

// Load finds the newest version for drive whose metadata parses and whose
// journal_id matches currentJournalID, reads all entries without indexing
// secondaries as it goes, builds the secondaries in a single pass once
// every entry is known (index.Build), then verifies invariants 1-4. On any failure it returns a nil store, matching
// "no cache available".
func Load(dir string, drive byte, currentJournalID uint64) (*index.Store, Meta, error) {
	versions, err := List(dir)
	if err != nil {
		return nil, Meta{}, err
	}

	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		meta, ok := tryReadMeta(v.MetaPath)
		if !ok || meta.Drive != drive || meta.JournalID != currentJournalID {
			continue
		}
		store, err := loadEntries(v.BinPath)
		if err != nil {
			continue
		}
		if err := store.CheckInvariants(); err != nil {
			continue
		}
		return store, meta, nil
	}
	return nil, Meta{}, mfterrors.New(mfterrors.KindNotFound, "load", "no cache available")
}

func tryReadMeta(path string) (Meta, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, false
	}
	defer f.Close()
	m, err := DecodeMeta(f)
	if err != nil {
		return Meta{}, false
	}
	return m, true
}

func loadEntries(path string) (*index.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mfterrors.Wrap(mfterrors.KindIoError, "load_entries", "open .bin", err)
	}
	defer f.Close()

	var entries []index.FileEntry
	for {
		entry, err := DecodeEntry(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	store, _, err := index.Build(context.Background(), entries, index.BuilderConfig{}, 0, nil)
	if err != nil {
		return nil, err
	}
	return store, nil
}

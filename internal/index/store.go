package index

import (
	"sort"
	"sync"

	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// RootID is the sentinel parent/self id for the volume root directory.
const RootID uint64 = 5

// Store is the thread-safe, multi-indexed file table. A single RWMutex
// guards all four maps together: INVARIANT: outside of a write critical
// section, every id in a secondary index exists in byID, every entry's
// secondary-index slots point back to it, every non-root entry's parent is
// a directory, and no two entries share a by_full_path_ci key.
type Store struct {
	mu sync.RWMutex

	byID         map[uint64]FileEntry
	byNameCI     map[string]map[uint64]struct{}
	byExtension  map[string]map[uint64]struct{}
	byFullPathCI map[string]uint64

	filesProcessed uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:         make(map[uint64]FileEntry),
		byNameCI:     make(map[string]map[uint64]struct{}),
		byExtension:  make(map[string]map[uint64]struct{}),
		byFullPathCI: make(map[string]uint64),
	}
}

// Len returns the number of entries currently held (primary index size).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Insert adds entry, replacing any existing entry with the same ID. It
// rejects with Conflict if entry's full path collides with a different id.
func (s *Store) Insert(entry FileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entry)
}

func (s *Store) insertLocked(entry FileEntry) error {
	fullPath := s.fullPathLocked(entry.ID, &entry)
	key := foldLower(fullPath)

	if existingID, ok := s.byFullPathCI[key]; ok && existingID != entry.ID {
		return mfterrors.New(mfterrors.KindConflict, "insert", "full path collides with a different id")
	}

	if old, ok := s.byID[entry.ID]; ok {
		s.removeFromSecondaryLocked(old)
	}

	s.byID[entry.ID] = entry
	s.addToSecondaryLocked(entry, fullPath)
	return nil
}

// Remove deletes id from the primary and every secondary index. No-op if
// absent.
func (s *Store) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id uint64) {
	entry, ok := s.byID[id]
	if !ok {
		return
	}
	s.removeFromSecondaryLocked(entry)
	delete(s.byID, id)
}

// Rename updates id's parent/name atomically relative to readers,
// recomputing the full-path key and extension.
func (s *Store) Rename(id uint64, newParentID uint64, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		return mfterrors.New(mfterrors.KindNotFound, "rename", "unknown id")
	}
	old := entry
	s.removeFromSecondaryLocked(entry)
	entry.ParentID = newParentID
	entry.Name = newName

	fullPath := s.fullPathLocked(id, &entry)
	key := foldLower(fullPath)
	if existingID, ok := s.byFullPathCI[key]; ok && existingID != id {
		// Restore the old secondary entries before failing so the store
		// stays consistent.
		s.addToSecondaryLocked(old, s.fullPathLocked(id, &old))
		return mfterrors.New(mfterrors.KindConflict, "rename", "full path collides with a different id")
	}

	s.byID[id] = entry
	s.addToSecondaryLocked(entry, fullPath)
	return nil
}

// LookupByID returns the entry for id, if present.
func (s *Store) LookupByID(id uint64) (FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// CandidatesByExtension returns the ids whose extension equals ext
// (case-insensitive, no leading dot).
func (s *Store) CandidatesByExtension(ext string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byExtension[foldLower(ext)]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CandidatesByNameCI returns the ids whose lower-cased name equals
// lowerName exactly.
func (s *Store) CandidatesByNameCI(lowerName string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byNameCI[lowerName]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CandidatesByNameSubstring scans by_name_ci's keys for lowerSubstring,
// since the substring plane is not a trie; this is the documented linear
// fallback for substring/fuzzy queries.
func (s *Store) CandidatesByNameSubstring(lowerSubstring string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uint64
	for name, set := range s.byNameCI {
		if !containsFold(name, lowerSubstring) {
			continue
		}
		for id := range set {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllIDs returns every id in the store, ascending, for the linear-scan
// query fallback.
func (s *Store) AllIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FullPath materializes id's full path by walking the parent_id chain to
// root. A depth cap equal to the primary-index size guards against cycles
// (an invariant violation), surfaced as Corrupt.
func (s *Store) FullPath(id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullPathCheckedLocked(id)
}

func (s *Store) fullPathCheckedLocked(id uint64) (string, error) {
	maxSteps := len(s.byID)
	segments := make([]string, 0, 8)
	cur := id
	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return "", mfterrors.New(mfterrors.KindCorrupt, "full_path", "parent chain exceeds index size")
		}
		entry, ok := s.byID[cur]
		if !ok {
			break
		}
		if cur == RootID || entry.ParentID == cur {
			break
		}
		segments = append(segments, entry.Name)
		cur = entry.ParentID
	}
	return joinReverse(segments), nil
}

// fullPathLocked is the unchecked variant used during insert/rename, where
// entry is the (possibly not-yet-stored) candidate for id.
func (s *Store) fullPathLocked(id uint64, entry *FileEntry) string {
	segments := []string{entry.Name}
	cur := entry.ParentID
	maxSteps := len(s.byID) + 1
	for steps := 0; cur != RootID && steps < maxSteps; steps++ {
		parent, ok := s.byID[cur]
		if !ok {
			break
		}
		segments = append(segments, parent.Name)
		cur = parent.ParentID
		if parent.ParentID == cur && cur == parent.ID {
			break
		}
	}
	return joinReverse(segments)
}

func joinReverse(segments []string) string {
	out := make([]byte, 0, 64)
	for i := len(segments) - 1; i >= 0; i-- {
		out = append(out, segments[i]...)
		if i != 0 {
			out = append(out, '\\')
		}
	}
	return string(out)
}

func (s *Store) addToSecondaryLocked(entry FileEntry, fullPath string) {
	nameKey := foldLower(entry.Name)
	if s.byNameCI[nameKey] == nil {
		s.byNameCI[nameKey] = make(map[uint64]struct{})
	}
	s.byNameCI[nameKey][entry.ID] = struct{}{}

	if ext := entry.Extension(); ext != "" {
		if s.byExtension[ext] == nil {
			s.byExtension[ext] = make(map[uint64]struct{})
		}
		s.byExtension[ext][entry.ID] = struct{}{}
	}

	s.byFullPathCI[foldLower(fullPath)] = entry.ID
}

func (s *Store) removeFromSecondaryLocked(entry FileEntry) {
	nameKey := foldLower(entry.Name)
	if set, ok := s.byNameCI[nameKey]; ok {
		delete(set, entry.ID)
		if len(set) == 0 {
			delete(s.byNameCI, nameKey)
		}
	}
	if ext := entry.Extension(); ext != "" {
		if set, ok := s.byExtension[ext]; ok {
			delete(set, entry.ID)
			if len(set) == 0 {
				delete(s.byExtension, ext)
			}
		}
	}
	if fullPath := s.fullPathLocked(entry.ID, &entry); fullPath != "" {
		key := foldLower(fullPath)
		if id, ok := s.byFullPathCI[key]; ok && id == entry.ID {
			delete(s.byFullPathCI, key)
		}
	}
}

func containsFold(haystack, needleLower string) bool {
	h := foldLower(haystack)
	return indexOf(h, needleLower) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// CheckInvariants verifies invariants 1-4 from the data model. It's intended
// for tests and post-load verification, not the hot path.
func (s *Store) CheckInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, ids := range s.byNameCI {
		for id := range ids {
			entry, ok := s.byID[id]
			if !ok {
				return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_name_ci references unknown id")
			}
			if foldLower(entry.Name) != name {
				return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_name_ci key mismatch")
			}
		}
	}
	for ext, ids := range s.byExtension {
		for id := range ids {
			entry, ok := s.byID[id]
			if !ok {
				return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_extension references unknown id")
			}
			if entry.Extension() != ext {
				return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_extension key mismatch")
			}
		}
	}
	for id, entry := range s.byID {
		if id != RootID && entry.ParentID != id {
			parent, ok := s.byID[entry.ParentID]
			if !ok || !parent.IsDir {
				return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "parent is missing or not a directory")
			}
		}
	}
	seen := make(map[uint64]struct{}, len(s.byFullPathCI))
	for key, id := range s.byFullPathCI {
		if _, dup := seen[id]; dup {
			return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "duplicate id in by_full_path_ci")
		}
		seen[id] = struct{}{}
		entry, ok := s.byID[id]
		if !ok {
			return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_full_path_ci references unknown id")
		}
		if foldLower(s.fullPathLocked(id, &entry)) != key {
			return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "by_full_path_ci key mismatch")
		}
	}
	if len(seen) != len(s.byID) {
		return mfterrors.New(mfterrors.KindCorrupt, "check_invariants", "entry missing from by_full_path_ci")
	}
	return nil
}

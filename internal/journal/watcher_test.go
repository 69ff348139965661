package journal

import (
	"context"
	"testing"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/internal/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *index.Store {
	t.Helper()
	s := index.New()
	require.NoError(t, s.Insert(index.FileEntry{ID: index.RootID, ParentID: index.RootID, Name: "C:", IsDir: true}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 2, ParentID: index.RootID, Name: "docs", IsDir: true}))
	return s
}

func newTestWatcher(store *index.Store) *Watcher {
	return New(nil, nil, store, 1, 0, Config{}, nil, nil, nil, nil, nil)
}

func newTestWatcherWithSizeRefresh(store *index.Store, refresh SizeRefreshFunc) *Watcher {
	return New(nil, nil, store, 1, 0, Config{}, nil, nil, refresh, nil, nil)
}

func TestApplyCreateThenDelete(t *testing.T) {
	store := newTestStore(t)
	w := newTestWatcher(store)
	ctx := context.Background()

	w.applyOne(ctx, volume.USNRecord{USN: 1, FileRefID: 10, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "new.txt"})
	_, ok := store.LookupByID(10)
	assert.True(t, ok)

	w.applyOne(ctx, volume.USNRecord{USN: 2, FileRefID: 10, ParentRefID: 2, Reason: volume.ReasonFileDelete})
	_, ok = store.LookupByID(10)
	assert.False(t, ok)
}

func TestApplyRenameOldThenNew(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Insert(index.FileEntry{ID: 20, ParentID: 2, Name: "old.txt"}))
	w := newTestWatcher(store)
	ctx := context.Background()

	w.applyOne(ctx, volume.USNRecord{USN: 1, FileRefID: 20, ParentRefID: 2, Reason: volume.ReasonRenameOldName, Name: "old.txt"})
	assert.Contains(t, w.pendingByID, uint64(20))

	w.applyOne(ctx, volume.USNRecord{USN: 2, FileRefID: 20, ParentRefID: 2, Reason: volume.ReasonRenameNewName, Name: "new.txt"})
	assert.NotContains(t, w.pendingByID, uint64(20))

	entry, ok := store.LookupByID(20)
	require.True(t, ok)
	assert.Equal(t, "new.txt", entry.Name)
}

func TestApplyBatchIgnoresReplayedUSN(t *testing.T) {
	store := newTestStore(t)
	w := newTestWatcher(store)
	w.lastAppliedUSN = 5

	w.applyBatch(context.Background(), []volume.USNRecord{
		{USN: 3, FileRefID: 30, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "stale.txt"},
	})
	_, ok := store.LookupByID(30)
	assert.False(t, ok, "record at or below last_applied_usn must be ignored")
}

func TestApplyBatchAppliesInOrder(t *testing.T) {
	store := newTestStore(t)
	w := newTestWatcher(store)

	w.applyBatch(context.Background(), []volume.USNRecord{
		{USN: 1, FileRefID: 40, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "a.txt"},
		{USN: 2, FileRefID: 40, ParentRefID: 2, Reason: volume.ReasonFileDelete},
	})
	_, ok := store.LookupByID(40)
	assert.False(t, ok)
}

func TestApplyCreateRefreshesSizeFromMFT(t *testing.T) {
	store := newTestStore(t)
	refresh := func(ctx context.Context, fileRefID uint64) (uint64, bool) {
		assert.Equal(t, uint64(50), fileRefID)
		return 4096, true
	}
	w := newTestWatcherWithSizeRefresh(store, refresh)

	w.applyOne(context.Background(), volume.USNRecord{USN: 1, FileRefID: 50, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "grown.bin"})

	entry, ok := store.LookupByID(50)
	require.True(t, ok)
	assert.Equal(t, uint64(4096), entry.Size)
}

func TestApplySizeChangeUpdatesSizeInPlace(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Insert(index.FileEntry{ID: 60, ParentID: 2, Name: "grows.log", Size: 100}))

	refresh := func(ctx context.Context, fileRefID uint64) (uint64, bool) {
		return 5000, true
	}
	w := newTestWatcherWithSizeRefresh(store, refresh)

	w.applyOne(context.Background(), volume.USNRecord{USN: 1, FileRefID: 60, ParentRefID: 2, Reason: volume.ReasonDataExtend, Name: "grows.log"})

	entry, ok := store.LookupByID(60)
	require.True(t, ok)
	assert.Equal(t, uint64(5000), entry.Size, "DataExtend must update size in place")
}

func TestApplySizeChangeTruncateShrinksSize(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Insert(index.FileEntry{ID: 61, ParentID: 2, Name: "shrinks.log", Size: 9000}))

	refresh := func(ctx context.Context, fileRefID uint64) (uint64, bool) {
		return 10, true
	}
	w := newTestWatcherWithSizeRefresh(store, refresh)

	w.applyOne(context.Background(), volume.USNRecord{USN: 1, FileRefID: 61, ParentRefID: 2, Reason: volume.ReasonDataTruncate, Name: "shrinks.log"})

	entry, ok := store.LookupByID(61)
	require.True(t, ok)
	assert.Equal(t, uint64(10), entry.Size, "DataTruncate must update size in place")
}

type countingMetrics struct{ applied uint64 }

func (m *countingMetrics) IncJournalApplied(n uint64) { m.applied += n }

func TestApplyBatchReturnsAppliedCountExcludingStaleReplays(t *testing.T) {
	store := newTestStore(t)
	metrics := &countingMetrics{}
	w := New(nil, nil, store, 1, 5, Config{}, nil, nil, nil, metrics, nil)

	applied := w.applyBatch(context.Background(), []volume.USNRecord{
		{USN: 3, FileRefID: 70, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "stale.txt"},
		{USN: 6, FileRefID: 71, ParentRefID: 2, Reason: volume.ReasonFileCreate, Name: "fresh.txt"},
		{USN: 7, FileRefID: 71, ParentRefID: 2, Reason: volume.ReasonFileDelete},
	})

	assert.Equal(t, 2, applied, "the stale USN=3 record must not count as applied")
	assert.Equal(t, uint64(0), metrics.applied, "applyBatch itself doesn't call metrics; the read loop does after each batch")
}

func TestApplySizeChangeKeepsPriorSizeWhenRefreshUnavailable(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Insert(index.FileEntry{ID: 62, ParentID: 2, Name: "nofresh.log", Size: 777}))

	// No refreshSize configured: the watcher keeps the previously known
	// size rather than silently zeroing it, and leaves it for the next
	// rebuild to converge.
	w := newTestWatcher(store)

	w.applyOne(context.Background(), volume.USNRecord{USN: 1, FileRefID: 62, ParentRefID: 2, Reason: volume.ReasonDataExtend, Name: "nofresh.log"})

	entry, ok := store.LookupByID(62)
	require.True(t, ok)
	assert.Equal(t, uint64(777), entry.Size)
}

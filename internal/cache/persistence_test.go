package cache

import (
	"os"
	"testing"
	"time"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStore(t *testing.T) *index.Store {
	t.Helper()
	s := index.New()
	require.NoError(t, s.Insert(index.FileEntry{ID: index.RootID, ParentID: index.RootID, Name: "C:", IsDir: true}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 2, ParentID: index.RootID, Name: "docs", IsDir: true}))
	require.NoError(t, s.Insert(index.FileEntry{
		ID: 10, ParentID: 2, Name: "README.md", Size: 42,
		Created: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	return s
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := buildStore(t)

	require.NoError(t, Save(dir, 'C', store, 777, 1000, time.Now().Unix(), 1700000000))

	loaded, meta, err := Load(dir, 'C', 777)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), meta.JournalID)
	assert.Equal(t, int64(1000), meta.LastAppliedUSN)
	assert.Equal(t, uint64(3), meta.FileCount)

	entry, ok := loaded.LookupByID(10)
	require.True(t, ok)
	assert.Equal(t, "README.md", entry.Name)
	assert.Equal(t, uint64(42), entry.Size)
	assert.Equal(t, 2024, entry.Created.Year())

	require.NoError(t, loaded.CheckInvariants())
}

func TestLoadRejectsJournalIDMismatch(t *testing.T) {
	dir := t.TempDir()
	store := buildStore(t)
	require.NoError(t, Save(dir, 'C', store, 777, 1000, time.Now().Unix(), 1700000000))

	_, _, err := Load(dir, 'C', 999)
	require.Error(t, err)
}

func TestPruneKeepsNewestVersions(t *testing.T) {
	dir := t.TempDir()
	store := buildStore(t)

	for i, ts := range []int64{1, 2, 3, 4, 5} {
		require.NoError(t, Save(dir, 'C', store, uint64(i), int64(i), time.Now().Unix(), ts))
	}

	errs := Prune(dir, 3)
	assert.Empty(t, errs)

	versions, err := List(dir)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, int64(3), versions[0].Timestamp)
	assert.Equal(t, int64(5), versions[2].Timestamp)
}

func TestListSkipsTornVersions(t *testing.T) {
	dir := t.TempDir()
	store := buildStore(t)
	require.NoError(t, Save(dir, 'C', store, 1, 1, time.Now().Unix(), 100))

	// Remove just the .bin to simulate a torn write.
	require.NoError(t, os.Remove(binPath(dir, 100)))

	versions, err := List(dir)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

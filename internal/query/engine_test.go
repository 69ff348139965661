package query

import (
	"testing"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQueryStore(t *testing.T) *index.Store {
	t.Helper()
	s := index.New()
	require.NoError(t, s.Insert(index.FileEntry{ID: index.RootID, ParentID: index.RootID, Name: "C:", IsDir: true}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 2, ParentID: index.RootID, Name: "docs", IsDir: true}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 10, ParentID: 2, Name: "README.md", Size: 42}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 5, ParentID: index.RootID, Name: "a.log"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 7, ParentID: index.RootID, Name: "b.log"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 11, ParentID: index.RootID, Name: "c.log"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 20, ParentID: index.RootID, Name: "d.log"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 99, ParentID: index.RootID, Name: "unit_test.js"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 30, ParentID: index.RootID, Name: "main.rs"}))
	require.NoError(t, s.Insert(index.FileEntry{ID: 31, ParentID: index.RootID, Name: "main.py"}))
	return s
}

func TestExactHit(t *testing.T) {
	s := buildQueryStore(t)
	resp, err := Evaluate(s, Spec{Pattern: "README.md", Mode: ModeExact}, true)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "docs\\README.md", resp.Results[0].Path)
	assert.Equal(t, uint64(42), resp.Results[0].Size)
	assert.Equal(t, "exact", resp.Info.MatchType)
}

func TestGlobWithMaxResultsTieBreaksAscending(t *testing.T) {
	s := buildQueryStore(t)
	resp, err := Evaluate(s, Spec{Pattern: "*.log", Mode: ModeGlob, MaxResults: 3}, true)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	ids := []uint64{resp.Results[0].ID, resp.Results[1].ID, resp.Results[2].ID}
	assert.Equal(t, []uint64{5, 7, 11}, ids)
	assert.Equal(t, "glob", resp.Info.MatchType)
}

func TestSmartModeFallsBackToSubstring(t *testing.T) {
	s := buildQueryStore(t)
	resp, err := Evaluate(s, Spec{Pattern: "unit_test", Mode: ModeSmart}, true)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, uint64(99), resp.Results[0].ID)
}

func TestExtensionsOverrideDocClass(t *testing.T) {
	s := buildQueryStore(t)
	resp, err := Evaluate(s, Spec{
		Pattern: "*", Mode: ModeGlob, DocClass: DocClassCode, Extensions: []string{"rs"},
	}, true)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "main.rs", resp.Results[0].Name)
}

func TestPathTraversalRejected(t *testing.T) {
	s := buildQueryStore(t)
	_, err := Evaluate(s, Spec{Pattern: `..\..\etc`, Mode: ModeSubstring}, true)
	require.Error(t, err)
}

func TestGlobToRegexExactMatch(t *testing.T) {
	re, err := globToRegex("README.md")
	require.NoError(t, err)
	assert.True(t, re.MatchString("README.md"))
	assert.True(t, re.MatchString("readme.md"))
	assert.False(t, re.MatchString("README.mdx"))
}

func TestMaxResultsOne(t *testing.T) {
	s := buildQueryStore(t)
	resp, err := Evaluate(s, Spec{Pattern: "*.log", Mode: ModeGlob, MaxResults: 1}, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 1)
}

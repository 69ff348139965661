package query

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// Mode selects how Pattern is interpreted, per spec.md §4.7.
type Mode string

const (
	ModeExact     Mode = "exact"
	ModeGlob      Mode = "glob"
	ModeRegex     Mode = "regex"
	ModeSubstring Mode = "substring"
	ModeSmart     Mode = "smart"
)

// KindFilter restricts results to files, directories, or either.
type KindFilter string

const (
	KindAny       KindFilter = "any"
	KindFile      KindFilter = "file"
	KindDirectory KindFilter = "directory"
)

const maxPatternLength = 1000
const defaultMaxResults = 1000
const maxMaxResults = 10000

// Spec is one query request, per spec.md §4.7's QuerySpec.
type Spec struct {
	Pattern      string
	Mode         Mode
	PathContains string
	Drive        byte // 0 means "*", all volumes; resolved by the caller's registry
	MaxResults   int
	KindFilter   KindFilter
	Extensions   []string
	DocClass     DocClass
	MinSize      *uint64
	MaxSize      *uint64
}

// Result is one matched entry with its materialized full path.
type Result struct {
	ID         uint64
	Name       string
	Path       string
	Size       uint64
	IsDir      bool
	Modified   time.Time
	Extension  string
}

// Info carries the timing/diagnostic metadata spec.md §4.7 step 4 and §6
// require alongside results.
type Info struct {
	Pattern      string
	Mode         Mode
	SearchTimeMs float64
	MatchType    string
	IndexSize    int
	NtfsMode     bool
}

// Response is the full query output.
type Response struct {
	Results []Result
	Info    Info
}

// Evaluate validates spec, selects the cheapest driver index, applies the
// remaining filters, and returns up to spec.MaxResults results tie-broken
// by ascending id, per spec.md §4.7.
func Evaluate(store *index.Store, spec Spec, ntfsMode bool) (Response, error) {
	start := time.Now()

	if err := validate(&spec); err != nil {
		return Response{}, err
	}

	var matcher func(name string) bool
	matchType := string(spec.Mode)

	effectiveMode := spec.Mode
	if effectiveMode == ModeSmart {
		if strings.ContainsAny(spec.Pattern, "*?") {
			effectiveMode = ModeGlob
		} else {
			effectiveMode = ModeSubstring
		}
		matchType = string(effectiveMode)
	}

	lowerPattern := index.Fold(spec.Pattern)

	switch effectiveMode {
	case ModeExact:
		matcher = func(name string) bool { return index.Fold(name) == lowerPattern }
	case ModeGlob:
		re, err := globToRegex(spec.Pattern)
		if err != nil {
			return Response{}, mfterrors.Wrap(mfterrors.KindInvalidPattern, "evaluate", "bad glob", err)
		}
		matcher = func(name string) bool { return re.MatchString(name) }
	case ModeRegex:
		re, err := compileAnchoredCI(spec.Pattern)
		if err != nil {
			return Response{}, mfterrors.Wrap(mfterrors.KindInvalidPattern, "evaluate", "bad regex", err)
		}
		matcher = func(name string) bool { return re.MatchString(name) }
	case ModeSubstring:
		matcher = func(name string) bool { return strings.Contains(index.Fold(name), lowerPattern) }
	}

	candidates := selectCandidates(store, spec, effectiveMode, lowerPattern)

	var results []Result
	for _, id := range candidates {
		entry, ok := store.LookupByID(id)
		if !ok {
			continue
		}
		if !matcher(entry.Name) {
			continue
		}
		if !passesFilters(store, entry, spec) {
			continue
		}
		path, err := store.FullPath(id)
		if err != nil {
			continue // Corrupt parent chain: drop this entry, continue (spec §7)
		}
		results = append(results, Result{
			ID:        entry.ID,
			Name:      entry.Name,
			Path:      path,
			Size:      entry.Size,
			IsDir:     entry.IsDir,
			Modified:  entry.Modified,
			Extension: entry.Extension(),
		})
		if len(results) >= spec.MaxResults {
			break
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	return Response{
		Results: results,
		Info: Info{
			Pattern:      spec.Pattern,
			Mode:         spec.Mode,
			SearchTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			MatchType:    matchType,
			IndexSize:    store.Len(),
			NtfsMode:     ntfsMode,
		},
	}, nil
}

func compileAnchoredCI(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)^(?:" + pattern + ")$")
}

func validate(spec *Spec) error {
	if spec.Pattern == "" {
		return mfterrors.New(mfterrors.KindInvalidPattern, "validate", "empty pattern")
	}
	if len(spec.Pattern) > maxPatternLength {
		return mfterrors.New(mfterrors.KindInvalidPattern, "validate", "pattern too long")
	}
	if strings.Contains(spec.Pattern, "..") || strings.Contains(spec.PathContains, "..") {
		return mfterrors.New(mfterrors.KindInvalidPattern, "validate", "path traversal sequence not allowed")
	}
	if spec.MaxResults == 0 {
		spec.MaxResults = defaultMaxResults
	}
	if spec.MaxResults < 1 || spec.MaxResults > maxMaxResults {
		return mfterrors.New(mfterrors.KindInvalidPattern, "validate", "max_results out of range")
	}
	if spec.KindFilter == "" {
		spec.KindFilter = KindAny
	}
	if spec.MinSize != nil && spec.MaxSize != nil && *spec.MinSize > *spec.MaxSize {
		return mfterrors.New(mfterrors.KindInvalidPattern, "validate", "min_size exceeds max_size")
	}
	return nil
}

// selectCandidates picks the driver index that minimizes candidate count,
// per spec.md §4.7 step 2.
func selectCandidates(store *index.Store, spec Spec, mode Mode, lowerPattern string) []uint64 {
	if len(spec.Extensions) > 0 && len(spec.Extensions) <= 8 {
		seen := make(map[uint64]struct{})
		var out []uint64
		for _, ext := range spec.Extensions {
			for _, id := range store.CandidatesByExtension(ext) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					out = append(out, id)
				}
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	if mode == ModeExact {
		return store.CandidatesByNameCI(lowerPattern)
	}
	if mode == ModeSubstring {
		return store.CandidatesByNameSubstring(lowerPattern)
	}
	return store.AllIDs()
}

func passesFilters(store *index.Store, entry index.FileEntry, spec Spec) bool {
	if spec.KindFilter == KindFile && entry.IsDir {
		return false
	}
	if spec.KindFilter == KindDirectory && !entry.IsDir {
		return false
	}
	if spec.MinSize != nil && entry.Size < *spec.MinSize {
		return false
	}
	if spec.MaxSize != nil && entry.Size > *spec.MaxSize {
		return false
	}
	if len(spec.Extensions) > 0 {
		if !extensionIn(entry.Extension(), spec.Extensions) {
			return false
		}
	} else if spec.DocClass != "" {
		exts := ExtensionsForDocClass(spec.DocClass)
		if !extensionIn(entry.Extension(), exts) {
			return false
		}
	}
	if spec.PathContains != "" {
		path, err := store.FullPath(entry.ID)
		if err != nil || !strings.Contains(index.Fold(path), index.Fold(spec.PathContains)) {
			return false
		}
	}
	return true
}

func extensionIn(ext string, set []string) bool {
	ext = index.Fold(ext)
	for _, e := range set {
		if index.Fold(strings.TrimPrefix(e, ".")) == ext {
			return true
		}
	}
	return false
}

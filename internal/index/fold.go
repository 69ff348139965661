package index

import (
	"golang.org/x/text/cases"
)

// foldCaser performs Unicode simple case folding rather than ASCII
// lower-casing. The source this engine is modeled on lower-cases with plain
// ASCII rules, which is ambiguous (and likely buggy) on non-ASCII names;
// this engine folds correctly and documents the choice (see DESIGN.md,
// Open Question decisions, #1).
var foldCaser = cases.Fold()

func foldLower(s string) string {
	return foldCaser.String(s)
}

// Fold exposes the same Unicode case folding used internally by the index
// for name/path comparison, so callers (QueryEngine) normalize identically.
func Fold(s string) string {
	return foldLower(s)
}

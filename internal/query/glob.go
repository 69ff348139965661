// Package query implements QueryEngine: QuerySpec validation, driver-index
// selection, and filter evaluation, grounded on
// original_source/service/src/ntfs_reader.rs's glob_to_regex and
// original_source/service/src/fastsearch_service/search_engine.rs's
// dispatch shape.
package query

import (
	"regexp"
	"strings"
)

// globToRegex translates a shell glob (only * and ? recognized; no
// character classes) into an anchored, case-insensitive compiled regex,
// per spec.md §4.7: `.`, `+`, `(`, `)`, `[`, `]`, `{`, `}`, `|`, `^`, `$`,
// `\` are escaped first, then `*` -> `.*`, `?` -> `.`, wrapped in
// `^(?i)...$`.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^(?i)")
	for _, r := range pattern {
		switch r {
		case '.', '+', '(', ')', '[', ']', '{', '}', '|', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// NamingPattern describes how a CDN deployment renders a numeric segment
// index into a filename: prefix + zero-padded index + suffix.
type NamingPattern struct {
	Prefix  string
	Padding int // zero-pad width; 0 means no padding
	Suffix  string
}

// Filename renders the filename for a segment index.
func (p NamingPattern) Filename(index int) string {
	if p.Padding > 0 {
		return fmt.Sprintf("%s%0*d%s", p.Prefix, p.Padding, index, p.Suffix)
	}
	return fmt.Sprintf("%s%d%s", p.Prefix, index, p.Suffix)
}

// ParseIndex recovers the numeric segment index from a filename produced by
// this pattern. Stores sort on this parsed index rather than on the raw
// filename, so ordering stays correct even when padding widths vary.
func (p NamingPattern) ParseIndex(filename string) (int, error) {
	if !strings.HasPrefix(filename, p.Prefix) || !strings.HasSuffix(filename, p.Suffix) {
		return 0, fmt.Errorf("filename %q does not match pattern %s*%s", filename, p.Prefix, p.Suffix)
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(filename, p.Prefix), p.Suffix)
	if digits == "" {
		return 0, fmt.Errorf("filename %q has no index digits", filename)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse index from %q: %w", filename, err)
	}
	return n, nil
}

// DefaultPattern is the convention assumed before detection succeeds. It is
// only used to check the local cache; the CDN is never fetched with it outside
// the candidate probe.
func DefaultPattern() NamingPattern {
	return NamingPattern{Prefix: "data", Padding: 0, Suffix: ".ts"}
}

// CandidatePatterns returns the fixed, ordered list of naming conventions the
// prober tries, most-likely-to-match first. The list is deliberately not
// extensible at runtime so probe behavior stays deterministic.
func CandidatePatterns() []NamingPattern {
	return []NamingPattern{
		{Prefix: "data", Padding: 6, Suffix: ".ts"}, // data000090.ts
		{Prefix: "data", Padding: 0, Suffix: ".ts"}, // data90.ts
		{Prefix: "data", Padding: 5, Suffix: ".ts"},
		{Prefix: "data", Padding: 4, Suffix: ".ts"},
		{Prefix: "chunk_", Padding: 0, Suffix: ".ts"},
		{Prefix: "segment", Padding: 0, Suffix: ".ts"},
	}
}

package pattern

import (
	"errors"
	"strings"

	"github.com/artdex/api/internal/normalize"
)

// ErrEmptyPattern is returned when the input normalizes to nothing.
var ErrEmptyPattern = errors.New("pattern is empty")

// Matcher tests whole field values against a glob pattern. `*` is the
// only wildcard; a pattern without one matches only values equal to it
// case-insensitively in full, never substrings.
type Matcher struct {
	raw      string
	segments []string
	wildcard bool
}

// Compile normalizes the pattern and splits it on `*` into the literal
// segments the matcher anchors on.
func Compile(raw string) (*Matcher, error) {
	clean, ok := normalize.Text(raw)
	if !ok {
		return nil, ErrEmptyPattern
	}
	folded := normalize.Fold(clean)
	return &Matcher{
		raw:      clean,
		segments: strings.Split(folded, "*"),
		wildcard: strings.Contains(folded, "*"),
	}, nil
}

// String returns the normalized pattern as submitted.
func (m *Matcher) String() string { return m.raw }

// HasWildcard reports whether the pattern contains `*`.
func (m *Matcher) HasWildcard() bool { return m.wildcard }

// Match reports whether candidate matches the whole pattern,
// case-insensitively.
func (m *Matcher) Match(candidate string) bool {
	c := normalize.Fold(candidate)
	if !m.wildcard {
		return c == m.segments[0]
	}

	segs := m.segments
	if head := segs[0]; head != "" {
		if !strings.HasPrefix(c, head) {
			return false
		}
		c = c[len(head):]
	}
	if tail := segs[len(segs)-1]; tail != "" {
		if !strings.HasSuffix(c, tail) {
			return false
		}
		c = c[:len(c)-len(tail)]
	}
	// Interior segments must appear in order in what remains.
	for _, seg := range segs[1 : len(segs)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(c, seg)
		if idx < 0 {
			return false
		}
		c = c[idx+len(seg):]
	}
	return true
}

// MatchesAny reports whether at least one element of values matches.
func (m *Matcher) MatchesAny(values []string) bool {
	for _, v := range values {
		if m.Match(v) {
			return true
		}
	}
	return false
}

// MatchingValues returns the elements of values that match, preserving
// their order.
func (m *Matcher) MatchingValues(values []string) []string {
	matched := make([]string, 0, len(values))
	for _, v := range values {
		if m.Match(v) {
			matched = append(matched, v)
		}
	}
	return matched
}

// SQL renders the pattern for a Postgres ILIKE prefilter: `*` becomes
// `%`, and `%`/`_`/`\` are escaped so they stay literal. Match remains
// authoritative; the prefilter only narrows the scan.
func (m *Matcher) SQL() string {
	var b strings.Builder
	for _, r := range m.raw {
		switch r {
		case '*':
			b.WriteRune('%')
		case '%', '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

package pattern

import (
	"strings"

	"github.com/bastiangx/pickserve/internal/utils"
)

// Span is a half-open range [Start, End) of rune indexes in a name.
type Span struct {
	Start int
	End   int
}

// Highlight returns the rune ranges of name that the query matched, in
// ascending order. It returns nil when name does not match or the query is
// blank.
func (q *Query) Highlight(name string) []Span {
	if q.rule == RuleBlank || !q.Matches(name) {
		return nil
	}
	n := []rune(name)

	switch q.rule {
	case RuleExact:
		return []Span{{0, len(n)}}
	case RuleWildcard:
		return q.highlightGlob(n)
	case RuleCamelCase:
		var positions []int
		if camelCaseWalk([]rune(q.text), n, q.anchored(), q.suffix, &positions) {
			return spansFromPositions(positions)
		}
	}
	return q.highlightText(n)
}

func (q *Query) highlightText(n []rune) []Span {
	t := []rune(q.text)
	fold := !q.opts.CaseSensitive
	prefix := q.prefix || !q.substring()
	switch {
	case prefix && q.suffix:
		return []Span{{0, len(n)}}
	case prefix:
		return []Span{{0, len(t)}}
	case q.suffix:
		return []Span{{len(n) - len(t), len(n)}}
	}
	i := utils.IndexRunes(n, t, 0, fold, false)
	if i < 0 {
		return nil
	}
	return []Span{{i, i + len(t)}}
}

// highlightGlob marks the literal segments of the glob, placed greedily left
// to right.
func (q *Query) highlightGlob(n []rune) []Span {
	fold := !q.opts.CaseSensitive
	var spans []Span
	cursor := 0
	for i, seg := range strings.Split(q.text, string(anyString)) {
		if seg == "" {
			continue
		}
		s := []rune(seg)
		at := utils.IndexRunes(n, s, cursor, fold, true)
		if at < 0 || (i == 0 && at != 0) {
			return spans
		}
		// '?' positions are matched but not highlighted
		start := -1
		for j, r := range s {
			if r == anyChar {
				if start >= 0 {
					spans = append(spans, Span{at + start, at + j})
					start = -1
				}
				continue
			}
			if start < 0 {
				start = j
			}
		}
		if start >= 0 {
			spans = append(spans, Span{at + start, at + len(s)})
		}
		cursor = at + len(s)
	}
	return spans
}

func spansFromPositions(positions []int) []Span {
	var spans []Span
	for _, p := range positions {
		if last := len(spans) - 1; last >= 0 && spans[last].End == p {
			spans[last].End++
			continue
		}
		spans = append(spans, Span{p, p + 1})
	}
	return spans
}

// Package pattern compiles typed search queries into match rules and tests candidate names against them.
//
// A query is what a user types into a filtered list: plain text, a camel-case
// abbreviation such as "NPE", or a glob such as "*Map?". Two markers change the
// anchoring of the text:
//
//	>Foo   the name must start with Foo
//	Foo<   the name must end with Foo (a trailing blank does the same)
//
// Compilation never fails. The worst a malformed query can do is degrade to a
// substring match.
package pattern

import (
	"strings"

	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/tidwall/match"
)

const (
	startSymbol = '>'
	endSymbol   = '<'
	blank       = ' '
	anyString   = '*'
	anyChar     = '?'
)

// Rule is the matching algorithm selected for a compiled query.
type Rule int

const (
	RuleBlank     Rule = iota // matches everything
	RuleExact                 // whole-name equality
	RulePrefix                // prefix, suffix or substring, depending on flags
	RuleWildcard              // glob with * and ?
	RuleCamelCase             // upper-case abbreviation such as NPE
)

var ruleNames = map[Rule]string{
	RuleBlank:     "blank",
	RuleExact:     "exact",
	RulePrefix:    "prefix",
	RuleWildcard:  "wildcard",
	RuleCamelCase: "camelcase",
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Mode is a set of rules the caller allows. Prefix matching is always
// available as the last fallback.
type Mode uint8

const (
	ModeExact Mode = 1 << iota
	ModeWildcard
	ModeCamelCase
	// ModeSubstring makes unanchored text match anywhere in the name
	// instead of only at its start.
	ModeSubstring

	DefaultModes = ModeExact | ModeWildcard | ModeCamelCase | ModeSubstring
)

// Options controls query compilation.
type Options struct {
	Modes         Mode
	CaseSensitive bool
}

// DefaultOptions allows every rule, case-insensitive.
func DefaultOptions() Options {
	return Options{Modes: DefaultModes}
}

// Query is an immutable compiled search query.
type Query struct {
	raw  string
	text string // pattern with markers removed; the padded glob for wildcards
	glob string // case-normalized glob handed to the matcher
	rule Rule
	opts Options

	prefix    bool
	suffix    bool
	camelOnly bool
}

// Compile compiles raw with DefaultOptions.
func Compile(raw string) *Query {
	return CompileWith(raw, DefaultOptions())
}

// CompileWith compiles raw into a Query. Every input yields a valid query.
func CompileWith(raw string, opts Options) *Query {
	q := &Query{raw: raw, opts: opts}
	if raw == "" {
		q.rule = RuleBlank
		return q
	}

	body := raw
	if body[0] == startSymbol {
		q.prefix = true
		body = body[1:]
	}
	switch {
	case strings.HasSuffix(body, string(endSymbol)):
		q.suffix = true
		body = body[:len(body)-1]
	case strings.HasSuffix(body, string(blank)):
		q.suffix = true
		body = strings.TrimRight(body, string(blank))
	}
	q.text = body

	if body == "" {
		q.rule = RuleBlank
		return q
	}

	if opts.Modes&ModeWildcard != 0 && strings.ContainsAny(body, "*?") {
		q.compileWildcard(body)
		return q
	}

	if opts.Modes&ModeCamelCase != 0 && validCamelCase(body) {
		q.rule = RuleCamelCase
		// case-sensitive prefix matching is what camel-case already does
		if opts.CaseSensitive {
			q.camelOnly = true
			q.prefix = false
		}
		return q
	}

	if opts.Modes&ModeExact != 0 && q.suffix && (q.prefix || !q.substring()) {
		q.rule = RuleExact
		return q
	}

	q.rule = RulePrefix
	return q
}

func (q *Query) compileWildcard(body string) {
	q.rule = RuleWildcard
	glob := collapseStars(body)
	if q.substring() && !q.prefix && glob[0] != anyString {
		glob = string(anyString) + glob
	}
	if !q.suffix && glob[len(glob)-1] != anyString {
		glob += string(anyString)
	}
	q.text = glob
	q.glob = glob
	if !q.opts.CaseSensitive {
		q.glob = strings.ToLower(glob)
	}
}

// collapseStars replaces runs of '*' with a single '*'.
func collapseStars(s string) string {
	if !strings.Contains(s, "**") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevStar := false
	for _, r := range s {
		if r == anyString {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *Query) substring() bool {
	return q.opts.Modes&ModeSubstring != 0
}

// anchored reports whether camel-case matching must start at the first
// character of the name.
func (q *Query) anchored() bool {
	return q.prefix || q.camelOnly || !q.substring()
}

// Matches reports whether name satisfies the query.
func (q *Query) Matches(name string) bool {
	switch q.rule {
	case RuleBlank:
		return true
	case RuleWildcard:
		if !q.opts.CaseSensitive {
			name = strings.ToLower(name)
		}
		return match.Match(name, q.glob)
	case RuleExact:
		return q.equalText(name)
	case RuleCamelCase:
		if CamelCaseMatch(q.text, name, q.anchored(), q.suffix) {
			return true
		}
		if q.camelOnly {
			return false
		}
	}
	return q.matchText(name)
}

// matchText applies the prefix/suffix/substring family.
func (q *Query) matchText(name string) bool {
	prefix := q.prefix || !q.substring()
	switch {
	case prefix && q.suffix:
		return q.equalText(name)
	case prefix:
		if q.opts.CaseSensitive {
			return strings.HasPrefix(name, q.text)
		}
		return utils.HasPrefixFold(name, q.text)
	case q.suffix:
		if q.opts.CaseSensitive {
			return strings.HasSuffix(name, q.text)
		}
		return utils.HasSuffixFold(name, q.text)
	default:
		if q.opts.CaseSensitive {
			return strings.Contains(name, q.text)
		}
		return utils.ContainsFold(name, q.text)
	}
}

func (q *Query) equalText(name string) bool {
	if q.opts.CaseSensitive {
		return name == q.text
	}
	return strings.EqualFold(name, q.text)
}

// Raw returns the string the query was compiled from.
func (q *Query) Raw() string { return q.raw }

// Text returns the pattern text without anchoring markers. For wildcard
// queries this is the padded glob.
func (q *Query) Text() string { return q.text }

// Rule returns the selected match rule.
func (q *Query) Rule() Rule { return q.rule }

// Options returns the options the query was compiled with.
func (q *Query) Options() Options { return q.opts }

// EnforcesPrefix reports whether the name must start with the pattern.
func (q *Query) EnforcesPrefix() bool { return q.prefix }

// EnforcesSuffix reports whether the name must end with the pattern.
func (q *Query) EnforcesSuffix() bool { return q.suffix }

// CamelOnly reports whether a failed camel-case test rejects the name
// without falling back to text matching.
func (q *Query) CamelOnly() bool { return q.camelOnly }

// Pattern returns the canonical form of the query. Compiling it again with
// the same options yields a query with the same rule and behaviour.
func (q *Query) Pattern() string {
	if q.rule == RuleBlank {
		return ""
	}
	var b strings.Builder
	b.Grow(len(q.text) + 2)
	if q.prefix {
		b.WriteByte(startSymbol)
	}
	b.WriteString(q.text)
	if q.suffix {
		b.WriteByte(endSymbol)
	}
	return b.String()
}

// Equal reports whether both queries select exactly the same names.
func (q *Query) Equal(other *Query) bool {
	if other == nil {
		return false
	}
	return q.opts == other.opts && q.Pattern() == other.Pattern()
}

// IsMoreGeneralThan reports whether every name matched by other is also
// matched by q, so that other can be answered by re-filtering q's results.
//
// Both queries must use the same rule and other's canonical pattern must
// extend q's. A blank query covers everything. A bare ">" is never treated
// as more general, and a suffix-anchored query only covers an equal one.
func (q *Query) IsMoreGeneralThan(other *Query) bool {
	if other == nil || q.raw == string(startSymbol) || q.opts != other.opts {
		return false
	}
	if q.rule == RuleBlank {
		return true
	}
	if q.suffix || q.rule != other.rule {
		return q.Equal(other)
	}
	head := q.Pattern()
	if q.rule == RuleWildcard {
		head = strings.TrimRight(head, string(anyString))
		// an escape cut off from the character it escapes
		if strings.HasSuffix(head, `\`) {
			return q.Equal(other)
		}
	}
	return strings.HasPrefix(other.Pattern(), head)
}

func (q *Query) String() string {
	return q.rule.String() + ":" + q.Pattern()
}

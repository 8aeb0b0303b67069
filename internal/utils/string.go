package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EqualFold performs case-insensitive rune equality check
func EqualFold(a, b rune) bool {
	if a == b {
		return true
	}

	// Try simple ASCII case folding first (faster)
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		return a == b
	}

	// Walk the Unicode fold orbit for the rest
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}

// HasPrefixFold reports whether s begins with prefix, ignoring case.
func HasPrefixFold(s, prefix string) bool {
	for _, pr := range prefix {
		if s == "" {
			return false
		}
		r, size := utf8.DecodeRuneInString(s)
		if !EqualFold(r, pr) {
			return false
		}
		s = s[size:]
	}
	return true
}

// HasSuffixFold reports whether s ends with suffix, ignoring case.
func HasSuffixFold(s, suffix string) bool {
	for suffix != "" {
		if s == "" {
			return false
		}
		sr, ssize := utf8.DecodeLastRuneInString(suffix)
		r, size := utf8.DecodeLastRuneInString(s)
		if !EqualFold(r, sr) {
			return false
		}
		s = s[:len(s)-size]
		suffix = suffix[:len(suffix)-ssize]
	}
	return true
}

// ContainsFold checks if string contains substring case-insensitively
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IndexRunes returns the rune index of the first occurrence of needle in
// hay at or after from, or -1. A '?' in needle matches any rune when
// wildcard is set.
func IndexRunes(hay, needle []rune, from int, fold, wildcard bool) int {
	if len(needle) == 0 {
		return from
	}
	for i := from; i+len(needle) <= len(hay); i++ {
		ok := true
		for j, nr := range needle {
			hr := hay[i+j]
			if wildcard && nr == '?' {
				continue
			}
			if hr == nr || (fold && EqualFold(hr, nr)) {
				continue
			}
			ok = false
			break
		}
		if ok {
			return i
		}
	}
	return -1
}

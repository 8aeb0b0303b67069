package pattern

import "unicode"

// CamelCaseMatch reports whether name matches the camel-case pattern.
//
// The first pattern character must equal a name character exactly. After that
// equal characters advance together; a pattern character that differs must be
// upper-case or a digit, and the name is skipped forward over lower-case
// filler until that character turns up. Hitting a different upper-case
// character on the way fails the attempt.
//
// When anchored is false every position where the first character occurs is
// tried. When suffix is set no upper-case character may follow the last
// matched one.
//
//	CamelCaseMatch("NPE", "NullPointerException", true, false) // true
//	CamelCaseMatch("NPE", "NewPerfData", true, false)          // false
func CamelCaseMatch(pattern, name string, anchored, suffix bool) bool {
	return camelCaseWalk([]rune(pattern), []rune(name), anchored, suffix, nil)
}

// camelCaseWalk runs the match and, when positions is non-nil, records the
// index of every name rune consumed by the pattern.
func camelCaseWalk(p, n []rune, anchored, suffix bool, positions *[]int) bool {
	if len(p) == 0 {
		return true
	}
	if anchored {
		return camelCaseMatchAt(p, n, 0, suffix, positions)
	}
	for start := range n {
		if n[start] != p[0] {
			continue
		}
		if camelCaseMatchAt(p, n, start, suffix, positions) {
			return true
		}
	}
	return false
}

func camelCaseMatchAt(p, n []rune, start int, suffix bool, positions *[]int) bool {
	if start >= len(n) || n[start] != p[0] {
		return false
	}
	var hits []int
	if positions != nil {
		hits = append(hits, start)
	}

	iName := start
	for iPattern := 1; iPattern < len(p); iPattern++ {
		iName++
		if iName >= len(n) {
			return false
		}
		pc := p[iPattern]
		if pc != n[iName] {
			if !isPatternCharAllowed(pc) {
				return false
			}
			for n[iName] != pc {
				if unicode.IsUpper(n[iName]) {
					return false
				}
				iName++
				if iName >= len(n) {
					return false
				}
			}
		}
		if positions != nil {
			hits = append(hits, iName)
		}
	}

	if suffix {
		for _, r := range n[iName+1:] {
			if unicode.IsUpper(r) {
				return false
			}
		}
	}
	if positions != nil {
		*positions = hits
	}
	return true
}

func isPatternCharAllowed(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

func isValidCamelCaseChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// validCamelCase reports whether s can be used as a camel-case pattern: it
// starts with an upper-case letter or digit, holds only identifier characters
// and has at least one upper-case letter.
func validCamelCase(s string) bool {
	upper := false
	for i, r := range s {
		if i == 0 && !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
		if !isValidCamelCaseChar(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper = true
		}
	}
	return upper
}

// Package permission implements the permission manager: deterministic
// (tool, arguments, context) -> Decision arbitration per §4.3, backed by a
// wildcard rule set, with an async Ask protocol for unmatched cases.
//
// Matching and specificity scoring are ported directly from
// wonopcode-util/src/wildcard.rs — the teacher's tools/policy/resolver.go
// covers a similar allow/deny shape but scores patterns by simple
// prefix/suffix matching rather than by specificity, so it cannot supply
// the tie-break contract the spec pins down for tests.
package permission

import "strings"

// matches reports whether text satisfies pattern, where '*' in pattern
// matches any run of characters (including none).
func matches(pattern, text string) bool {
	return matchesRecursive([]rune(pattern), []rune(text), 0, 0)
}

func matchesRecursive(pattern, text []rune, pi, ti int) bool {
	if pi == len(pattern) && ti == len(text) {
		return true
	}
	if pi == len(pattern) {
		return false
	}
	if pattern[pi] == '*' {
		if matchesRecursive(pattern, text, pi+1, ti) {
			return true
		}
		if ti < len(text) && matchesRecursive(pattern, text, pi, ti+1) {
			return true
		}
		return false
	}
	if ti == len(text) {
		return false
	}
	if pattern[pi] == text[ti] {
		return matchesRecursive(pattern, text, pi+1, ti+1)
	}
	return false
}

// specificity scores a pattern so that, among multiple matching rules, the
// most specific wins. The formula is contractual — tests pin the exact
// numbers — and must not be "simplified".
func specificity(pattern string) int {
	var literalChars, wildcards int
	for _, r := range pattern {
		if r == '*' {
			wildcards++
		} else {
			literalChars++
		}
	}

	score := literalChars * 100
	score -= wildcards * 10
	if score < 0 {
		score = 0
	}
	if !strings.HasPrefix(pattern, "*") {
		score += 50
	}
	if !strings.HasSuffix(pattern, "*") {
		score += 50
	}
	return score
}

// Package safety implements the coarse content gate applied to questions
// and to generated dialogue before it reaches a child.
package safety

import "strings"

// DefaultDenylist is matched case-insensitively as plain substrings.
var DefaultDenylist = []string{
	"violence",
	"blood",
	"kill",
	"weapon",
	"adult",
	"sex",
	"drugs",
	"alcohol",
}

type Gate struct {
	terms []string
}

// NewGate returns a gate over DefaultDenylist plus any extra terms.
func NewGate(extra ...string) *Gate {
	terms := make([]string, 0, len(DefaultDenylist)+len(extra))
	seen := make(map[string]bool)
	for _, t := range append(append([]string{}, DefaultDenylist...), extra...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return &Gate{terms: terms}
}

// IsSafe reports whether text contains none of the denylisted terms.
func (g *Gate) IsSafe(text string) bool {
	return g.FirstMatch(text) == ""
}

// FirstMatch returns the first denylisted term found in text, or "".
func (g *Gate) FirstMatch(text string) string {
	lowered := strings.ToLower(text)
	for _, t := range g.terms {
		if strings.Contains(lowered, t) {
			return t
		}
	}
	return ""
}

// CheckAll returns the index of the first unsafe line, or -1.
func (g *Gate) CheckAll(lines []string) int {
	for i, line := range lines {
		if !g.IsSafe(line) {
			return i
		}
	}
	return -1
}

package animation

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

const DefaultCharacter = "girl"

var characters = map[string]struct{}{
	"girl":  {},
	"boy":   {},
	"ben10": {},
}

// PickCharacter resolves a character preference. "random" is stable per
// question so a cached answer keeps its character.
func PickCharacter(pref, topic, question, lang string) string {
	p := strings.ToLower(strings.TrimSpace(pref))
	if p == "random" {
		if xxhash.Sum64String(topic+"|"+question+"|"+lang)%2 == 0 {
			return "girl"
		}
		return "boy"
	}
	if _, ok := characters[p]; ok {
		return p
	}
	return DefaultCharacter
}

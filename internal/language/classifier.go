package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Classifier guesses the language of free text. It returns "" when it has no answer.
type Classifier interface {
	Classify(text string) string
}

type ClassifierFunc func(text string) string

func (f ClassifierFunc) Classify(text string) string { return f(text) }

var scriptLanguages = []struct {
	table *unicode.RangeTable
	code  string
}{
	{unicode.Devanagari, "hi"},
	{unicode.Bengali, "bn"},
	{unicode.Tamil, "ta"},
	{unicode.Telugu, "te"},
}

// TextClassifier counts Indic script runes first and defers to whatlanggo
// for everything else.
type TextClassifier struct{}

func (TextClassifier) Classify(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if code := dominantScript(text); code != "" {
		return code
	}

	info := whatlanggo.Detect(text)
	if info.Script == nil {
		return ""
	}
	return info.Lang.Iso6391()
}

// dominantScript returns the language of the Indic script holding most letters,
// provided it covers at least half of them.
func dominantScript(text string) string {
	counts := make([]int, len(scriptLanguages))
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		letters++
		for i, s := range scriptLanguages {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	if letters == 0 {
		return ""
	}

	best, bestCount := -1, 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = i, c
		}
	}
	if best < 0 || bestCount*2 < letters {
		return ""
	}
	return scriptLanguages[best].code
}

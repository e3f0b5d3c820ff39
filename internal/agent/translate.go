package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const translateSystem = "You are a translation engine for a children's learning app."

var passthroughTargets = map[string]struct{}{
	"": {}, "unknown": {}, "auto": {}, "en": {},
}

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:\\w+)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

type TranslateAgent struct {
	chat Chatter
}

func NewTranslateAgent(chat Chatter) *TranslateAgent {
	return &TranslateAgent{chat: chat}
}

// Translate returns text in the target language. On any failure the input
// is returned unchanged along with the error.
func (a *TranslateAgent) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	lang := primaryCode(target)
	if _, ok := passthroughTargets[lang]; ok {
		return text, nil
	}
	if a.chat == nil {
		return text, fmt.Errorf("translate model not configured")
	}

	prompt := fmt.Sprintf(`Translate the following text into %s.

Rules:
- Output ONLY the translated text. No quotes, no JSON, no explanations.
- Keep it friendly for kids (ages 6-10).
- Preserve meaning; do not add new facts.
- Keep it short (1-2 sentences).

Text:
%s`, LanguageName(lang), text)

	reply, err := a.chat.SimpleChat(ctx, prompt, stageOptions(StageTranslate, translateSystem))
	if err != nil {
		return text, err
	}
	translated := cleanTranslation(reply)
	if translated == "" {
		return text, nil
	}
	return translated, nil
}

func cleanTranslation(reply string) string {
	t := strings.TrimSpace(reply)
	t = strings.TrimSpace(leadingFence.ReplaceAllString(t, ""))
	t = strings.TrimSpace(trailingFence.ReplaceAllString(t, ""))
	return strings.TrimSpace(strings.Trim(t, `"`))
}

package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
)

const intentSystem = "You are an intent extraction agent for a kids learning app."

// IntentAgent extracts topic and question type. It never fails: when the
// model is unavailable it guesses from the question text.
type IntentAgent struct {
	chat Chatter
}

func NewIntentAgent(chat Chatter) *IntentAgent {
	return &IntentAgent{chat: chat}
}

func (a *IntentAgent) Extract(ctx context.Context, text, lang string) (cache.Intent, error) {
	guess := GuessIntent(text)
	if a.chat == nil {
		return guess, nil
	}

	prompt := fmt.Sprintf(`Input text:
"%s"

Language: %s

Rules:
- Detect the topic in a few words, in the same language as the input.
- Detect the question type (why, what, how, when, where, who).
- Assume the asker is a child.
- Output ONLY valid JSON.

Output format:
{"topic": "...", "question_type": "...", "difficulty": "child"}`, text, LanguageName(lang))

	var out cache.Intent
	if err := a.chat.ChatJSON(ctx, prompt, stageOptions(StageIntent, intentSystem), intentSchema, &out); err != nil {
		log.Warn("intent extraction failed, using heuristic: %v", err)
		return guess, nil
	}

	out.Topic = strings.TrimSpace(out.Topic)
	if out.Topic == "" {
		out.Topic = guess.Topic
	}
	if out.QuestionType = strings.ToLower(strings.TrimSpace(out.QuestionType)); out.QuestionType == "" {
		out.QuestionType = guess.QuestionType
	}
	if out.Difficulty = strings.TrimSpace(out.Difficulty); out.Difficulty == "" {
		out.Difficulty = "child"
	}
	return out, nil
}

var questionWords = map[string]struct{}{
	"why": {}, "what": {}, "how": {}, "when": {}, "where": {}, "who": {},
}

var fillerWords = map[string]struct{}{
	"is": {}, "are": {}, "was": {}, "were": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "the": {}, "a": {}, "an": {}, "so": {}, "there": {},
	"please": {}, "tell": {}, "me": {}, "about": {}, "we": {}, "i": {}, "you": {},
}

// GuessIntent derives an intent without a model: the leading question word
// gives the type and the remaining content words form the topic.
func GuessIntent(text string) cache.Intent {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) && r != '\''
	})

	qType := "what"
	topic := make([]string, 0, len(words))
	for i, w := range words {
		if _, ok := questionWords[w]; ok {
			if i == 0 {
				qType = w
			}
			continue
		}
		if _, ok := fillerWords[w]; ok {
			continue
		}
		topic = append(topic, w)
	}

	t := strings.Join(topic, " ")
	if t == "" {
		t = strings.TrimSpace(text)
	}
	return cache.Intent{Topic: t, QuestionType: qType, Difficulty: "child"}
}

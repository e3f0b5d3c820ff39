package animation

import "strings"

// Action names match the clips baked into the character models, typos included.
const (
	ActionClaping  = "claping"
	ActionHello    = "hello"
	ActionBye      = "bye"
	ActionIdle     = "idle"
	ActionJump     = "jump"
	ActionNeutral  = "neutral"
	ActionQuestion = "question"
	ActionSuprised = "suprised"
	ActionThinking = "thinking"
	ActionWalking  = "walking"
)

// Vocabulary is the fixed set of renderable actions.
var Vocabulary = []string{
	ActionClaping,
	ActionHello,
	ActionBye,
	ActionIdle,
	ActionJump,
	ActionNeutral,
	ActionQuestion,
	ActionSuprised,
	ActionThinking,
	ActionWalking,
}

var aliases = map[string]string{
	"clapping":  ActionClaping,
	"clap":      ActionClaping,
	"surprised": ActionSuprised,
	"surprise":  ActionSuprised,
}

var looping = map[string]bool{
	ActionIdle:     true,
	ActionNeutral:  true,
	ActionThinking: true,
	ActionWalking:  true,
}

func IsValidAction(action string) bool {
	for _, a := range Vocabulary {
		if a == action {
			return true
		}
	}
	return false
}

// NormalizeAction maps an arbitrary action name into the vocabulary.
// Known aliases and case variants are mapped; anything else becomes neutral.
func NormalizeAction(action string) string {
	a := strings.TrimSpace(action)
	if IsValidAction(a) {
		return a
	}
	lower := strings.ToLower(a)
	if mapped, ok := aliases[lower]; ok {
		return mapped
	}
	if IsValidAction(lower) {
		return lower
	}
	return ActionNeutral
}

// Loops reports whether an action is a calm, repeatable clip.
func Loops(action string) bool {
	return looping[action]
}

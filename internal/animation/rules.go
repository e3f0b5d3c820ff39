package animation

import (
	"regexp"
	"strings"
)

// Rule picks an action for a dialogue line. Line is lowercased and trimmed.
type Rule struct {
	Name   string
	Action string
	Match  func(line string, idx, total int) bool
}

var questionLead = regexp.MustCompile(`^(do|did|can|could|would|have|has|why|what|how|when|where)\b`)

func containsAny(line string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

// Rules is evaluated in order; the first match wins. Lines matching none
// alternate between neutral and idle.
var Rules = []Rule{
	{Name: "opening", Action: ActionHello, Match: func(_ string, idx, _ int) bool {
		return idx == 0
	}},
	{Name: "wrap-up", Action: ActionBye, Match: func(line string, idx, total int) bool {
		return idx == total-1 && containsAny(line, "bye", "goodbye", "see you", "that's all", "thats all", "we learned", "today we learned")
	}},
	{Name: "praise", Action: ActionClaping, Match: func(line string, _, _ int) bool {
		return containsAny(line, "great job", "awesome", "yay", "well done", "good job", "you did it", "high five")
	}},
	{Name: "question", Action: ActionQuestion, Match: func(line string, _, _ int) bool {
		return strings.Contains(line, "?") || questionLead.MatchString(line)
	}},
	{Name: "thinking", Action: ActionThinking, Match: func(line string, _, _ int) bool {
		return containsAny(line, "hmm", "think", "imagine", "let's think", "lets think", "picture this")
	}},
	{Name: "surprise", Action: ActionSuprised, Match: func(line string, _, _ int) bool {
		return containsAny(line, "wow", "surprise", "amazing", "whoa", "oh no", "oops")
	}},
	{Name: "walking", Action: ActionWalking, Match: func(line string, _, _ int) bool {
		return containsAny(line, "walk", "let's go", "lets go", "come along")
	}},
	{Name: "jump", Action: ActionJump, Match: func(line string, _, _ int) bool {
		return containsAny(line, "jump", "hop")
	}},
}

// PickAction applies Rules to the idx-th of total dialogue lines.
func PickAction(text string, idx, total int) string {
	if total < 1 {
		total = 1
	}
	line := strings.ToLower(strings.TrimSpace(text))
	for _, r := range Rules {
		if r.Match(line, idx, total) {
			return r.Action
		}
	}
	if idx%2 == 0 {
		return ActionNeutral
	}
	return ActionIdle
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/animation"
	"github.com/MimeLyc/kidz-gpt/internal/cache"
)

const animationSystem = `You are an animation director for a children's learning application.
You map educational dialogue beats onto ONE predefined 3D character.
You choose one predefined action per line. You never invent actions and never change the meaning.
Your output directly controls a real-time character; any wrong action name breaks it.`

const maxPromptLines = 6

// AnimationRequest carries the inputs of one animation plan.
type AnimationRequest struct {
	Topic     string
	Question  string
	Scenes    []cache.Scene
	Language  string
	Character string
}

// AnimationAgent maps storyboard dialogue onto character actions. An empty
// result means the caller should use the keyword heuristic.
type AnimationAgent struct {
	chat Chatter
}

func NewAnimationAgent(chat Chatter) *AnimationAgent {
	return &AnimationAgent{chat: chat}
}

type animationOut struct {
	Scenes []struct {
		SceneID   *int `json:"scene_id"`
		Animation struct {
			Action string `json:"action"`
			Loop   *bool  `json:"loop"`
		} `json:"animation"`
		Dialogue struct {
			Text string `json:"text"`
		} `json:"dialogue"`
		Duration json.RawMessage `json:"duration"`
	} `json:"scenes"`
}

func (a *AnimationAgent) Plan(ctx context.Context, req AnimationRequest) ([]cache.AnimationScene, error) {
	if a.chat == nil {
		return nil, nil
	}

	lines := make([]string, 0, maxPromptLines)
	for _, s := range req.Scenes {
		if d := strings.TrimSpace(s.Dialogue); d != "" {
			lines = append(lines, d)
		}
		if len(lines) == maxPromptLines {
			break
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}
	actions, _ := json.Marshal(animation.Vocabulary)
	beats, _ := json.Marshal(lines)

	prompt := fmt.Sprintf(`Map dialogue beats to character actions that feel lively and friendly.

Language: %s
Topic: %s
Child's question: %s

AVAILABLE ACTIONS (choose EXACTLY one per scene):
%s

DIALOGUE BEATS (you may lightly rephrase, keep the meaning):
%s

RULES:
- Output ONLY valid JSON.
- Use ONLY the actions listed above.
- Keep dialogue.text under 18 words, warm and playful for a 7-year-old.
- Do NOT add new facts or questions.
- If the language is not English, do NOT use English words.
- 3 to 6 scenes, scene_id starting at 1.
- duration between 2 and 5 seconds.
- loop is true for talking or thinking actions, false for greeting, reacting, celebrating or ending actions.

OUTPUT FORMAT:
{"scenes": [{"scene_id": 1, "animation": {"action": "...", "loop": true}, "dialogue": {"text": "..."}, "duration": 3}]}`,
		LanguageName(req.Language), req.Topic, req.Question, actions, beats)

	var out animationOut
	if err := a.chat.ChatJSON(ctx, prompt, stageOptions(StageAnimation, animationSystem), animationSchema, &out); err != nil {
		return nil, err
	}

	drafts := make([]animation.Draft, 0, len(out.Scenes))
	for _, s := range out.Scenes {
		drafts = append(drafts, animation.Draft{
			SceneID:  s.SceneID,
			Action:   s.Animation.Action,
			Loop:     s.Animation.Loop,
			Text:     s.Dialogue.Text,
			Duration: parseDuration(s.Duration),
		})
	}
	return animation.Sanitize(drafts, req.Character), nil
}

// parseDuration accepts numbers and numeric strings; anything else yields 0.
func parseDuration(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

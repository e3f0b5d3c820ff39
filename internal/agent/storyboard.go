package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
	"github.com/MimeLyc/kidz-gpt/pkg/log"
)

const storyboardSystem = "You write short, friendly storyboards that explain things to children aged 6-10."

// StoryboardAgent produces dialogue beats. Model failures degrade to the
// deterministic TemplateStoryboard.
type StoryboardAgent struct {
	chat Chatter
}

func NewStoryboardAgent(chat Chatter) *StoryboardAgent {
	return &StoryboardAgent{chat: chat}
}

type storyboardOut struct {
	Scenes []struct {
		Scene      int    `json:"scene"`
		Background string `json:"background"`
		Dialogue   string `json:"dialogue"`
	} `json:"scenes"`
}

func (a *StoryboardAgent) Generate(ctx context.Context, intent cache.Intent, question, lang string) ([]cache.Scene, error) {
	if a.chat == nil {
		return TemplateStoryboard(intent.Topic, lang), nil
	}

	name := LanguageName(lang)
	prompt := fmt.Sprintf(`Create a storyboard that answers a child's question in %s.

Topic: %s
Child's question: %s

Rules:
- 3 to 5 scenes.
- Each scene has a background label (for example day_sky, night_sky, explanation, ocean, forest, space) and one short dialogue line.
- Dialogue lines are at most 20 words, warm and simple.
- ALL dialogue MUST be in %s.
- Output ONLY valid JSON.

Output format:
{"scenes": [{"scene": 1, "background": "...", "dialogue": "..."}]}`, name, intent.Topic, question, name)

	var out storyboardOut
	if err := a.chat.ChatJSON(ctx, prompt, stageOptions(StageStoryboard, storyboardSystem), storyboardSchema, &out); err != nil {
		log.Warn("storyboard generation failed, using template: %v", err)
		return TemplateStoryboard(intent.Topic, lang), nil
	}

	scenes := make([]cache.Scene, 0, len(out.Scenes))
	for _, s := range out.Scenes {
		dialogue := strings.TrimSpace(s.Dialogue)
		if dialogue == "" {
			continue
		}
		bg := strings.TrimSpace(s.Background)
		if bg == "" {
			bg = "explanation"
		}
		scenes = append(scenes, cache.Scene{
			Index:      len(scenes) + 1,
			Background: bg,
			Dialogue:   dialogue,
		})
	}
	if len(scenes) == 0 {
		return TemplateStoryboard(intent.Topic, lang), nil
	}
	return scenes, nil
}

type storyTemplate struct {
	defaultTopic string
	opening      string
	explain      string
}

var storyTemplates = map[string]storyTemplate{
	"en": {defaultTopic: "this topic", opening: "Have you ever wondered about %s?", explain: "Let’s understand it in a simple way."},
	"hi": {defaultTopic: "yeh topic", opening: "Tumne kabhi socha hai %s?", explain: "Chalo isse simple tarike se samajhte hain."},
	"bn": {defaultTopic: "এই বিষয়", opening: "তুমি কি কখনো %s নিয়ে ভেবেছ?", explain: "চলো এটা সহজভাবে বুঝি।"},
	"ta": {defaultTopic: "இந்த தலைப்பு", opening: "%s பற்றி நீ எப்போதாவது யோசித்திருக்கிறாயா?", explain: "வா, இதை எளிமையாகப் புரிந்துகொள்வோம்."},
	"te": {defaultTopic: "ఈ విషయం", opening: "నువ్వు ఎప్పుడైనా %s గురించి ఆలోచించావా?", explain: "రా, దీన్ని సరళంగా అర్థం చేసుకుందాం."},
}

// TemplateStoryboard is the two-scene storyboard used whenever generation fails.
func TemplateStoryboard(topic, lang string) []cache.Scene {
	tpl, ok := storyTemplates[primaryCode(lang)]
	if !ok {
		tpl = storyTemplates["en"]
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = tpl.defaultTopic
	}
	return []cache.Scene{
		{Index: 1, Background: "day_sky", Dialogue: fmt.Sprintf(tpl.opening, topic)},
		{Index: 2, Background: "explanation", Dialogue: tpl.explain},
	}
}

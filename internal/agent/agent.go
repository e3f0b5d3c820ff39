package agent

import (
	"context"
	"embed"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/llm"
)

// Pipeline stages; also the keys of per-stage model overrides.
const (
	StageIntent     = "intent"
	StageStoryboard = "storyboard"
	StageExplainer  = "explainer"
	StageAnimation  = "animation"
	StageQuiz       = "quiz"
	StageTranslate  = "translate"
)

// Chatter is the slice of the LLM client the agents need.
type Chatter interface {
	SimpleChat(ctx context.Context, prompt string, opts *llm.ChatCompletionOptions) (string, error)
	ChatJSON(ctx context.Context, prompt string, opts *llm.ChatCompletionOptions, schema *llm.Schema, out any) error
}

//go:embed schemas/*.json
var schemaFS embed.FS

func mustSchema(name string) *llm.Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(err)
	}
	return llm.MustCompileSchema(name, string(raw))
}

var (
	intentSchema     = mustSchema(StageIntent)
	storyboardSchema = mustSchema(StageStoryboard)
	explainerSchema  = mustSchema(StageExplainer)
	animationSchema  = mustSchema(StageAnimation)
	quizSchema       = mustSchema(StageQuiz)
)

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi (हिंदी)",
	"bn": "Bengali (বাংলা)",
	"ta": "Tamil (தமிழ்)",
	"te": "Telugu (తెలుగు)",
}

// LanguageName renders a code for prompts. Unknown codes are passed through.
func LanguageName(code string) string {
	c := primaryCode(code)
	if name, ok := languageNames[c]; ok {
		return name
	}
	if strings.TrimSpace(code) == "" {
		return "English"
	}
	return code
}

func primaryCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	c, _, _ = strings.Cut(c, "-")
	return c
}

func stageOptions(stage, system string) *llm.ChatCompletionOptions {
	return llm.NewChatCompletionOptions().WithStage(stage).WithSystemPrompt(system)
}

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
)

// QuizRequest carries the inputs of a quiz.
type QuizRequest struct {
	Topic     string
	Explainer cache.Explainer
	Language  string
	Grade     string
}

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

type QuizAgent struct {
	chat Chatter
}

func NewQuizAgent(chat Chatter) *QuizAgent {
	return &QuizAgent{chat: chat}
}

// Generate returns two-option questions only; malformed entries are dropped.
func (a *QuizAgent) Generate(ctx context.Context, req QuizRequest) (*Quiz, error) {
	if a.chat == nil {
		return nil, fmt.Errorf("quiz model not configured")
	}
	name := LanguageName(req.Language)

	gradeLine := "The child is in primary school (roughly classes 1-5). Keep all questions simple and age-appropriate."
	if g := strings.TrimSpace(req.Grade); g != "" {
		gradeLine = fmt.Sprintf("The child is in class/grade: %s. Make the questions and options suitable for this grade level.", g)
	}

	system := fmt.Sprintf(`You are a quiz creator for a children's learning app.
- The quiz must be in %s.
- %s
- Each question has exactly two options: one correct, one plausible but clearly wrong.
- Return a JSON object with a "questions" array.`, name, gradeLine)

	prompt := fmt.Sprintf(`Create a short quiz for a child (ages 6-10).

Topic: %s
Explanation:
- Summary: %s
- Key Points: %s

RULES:
- Generate exactly 3 questions.
- Each question has 2 options.
- correctAnswer is the 0-based index of the correct option.
- All text MUST be in %s.

REQUIRED JSON FORMAT:
{"questions": [{"question": "...", "options": ["...", "..."], "correctAnswer": 0}]}`,
		req.Topic, req.Explainer.Summary, strings.Join(req.Explainer.Points, "; "), name)

	var out Quiz
	opts := stageOptions(StageQuiz, system)
	if err := a.chat.ChatJSON(ctx, prompt, opts, quizSchema, &out); err != nil {
		return nil, err
	}

	kept := make([]QuizQuestion, 0, len(out.Questions))
	for _, q := range out.Questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" || len(q.Options) != 2 {
			continue
		}
		if q.CorrectAnswer != 0 && q.CorrectAnswer != 1 {
			continue
		}
		kept = append(kept, q)
	}
	return &Quiz{Questions: kept}, nil
}

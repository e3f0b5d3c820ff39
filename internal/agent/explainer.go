package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
)

const explainerSystem = "You write clear, factual explanations for a children's learning app."

const (
	pointCount     = 3
	minPointLength = 6
)

// ExplainRequest carries the inputs of one explainer generation.
type ExplainRequest struct {
	Topic    string
	Question string
	Language string
	Grade    string
}

// ExplainerAgent writes the title, summary and bullet points. Unlike the
// other agents it reports failures so the caller can record a fallback.
type ExplainerAgent struct {
	chat Chatter
}

func NewExplainerAgent(chat Chatter) *ExplainerAgent {
	return &ExplainerAgent{chat: chat}
}

type explainerOut struct {
	Title        string          `json:"title"`
	Summary      string          `json:"summary"`
	Points       json.RawMessage `json:"points"`
	ImageKeyword string          `json:"image_keyword"`
}

func (a *ExplainerAgent) Explain(ctx context.Context, req ExplainRequest) (*cache.Explainer, error) {
	if a.chat == nil {
		return nil, fmt.Errorf("explainer model not configured")
	}
	lang := primaryCode(req.Language)
	name := LanguageName(lang)

	grade := "The child is in primary school (roughly classes 1-5)."
	if g := strings.TrimSpace(req.Grade); g != "" {
		grade = fmt.Sprintf("The child is in class/grade: %s. Match that level.", g)
	}

	prompt := fmt.Sprintf(`Write a clean explanation for a child (ages 6-10) in %[1]s.
%[2]s

Topic: %[3]s
Child's question: %[4]s

Rules:
- ALL text MUST be in %[1]s ONLY.
- DO NOT write dialogue.
- DO NOT address the child by name.
- DO NOT ask questions.
- Keep it educational and specific.
- Summary: 1-2 short sentences.
- Points: 3 short bullet-style points (facts or steps).
- image_keyword: 1-3 English words to search a picture of the topic.

Return ONLY valid JSON in exactly this shape:
{"title": "...", "summary": "...", "points": ["...", "...", "..."], "image_keyword": "..."}`,
		name, grade, strings.TrimSpace(req.Topic), strings.TrimSpace(req.Question))

	var out explainerOut
	if err := a.chat.ChatJSON(ctx, prompt, stageOptions(StageExplainer, explainerSystem), explainerSchema, &out); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = fallbackTitle(req.Topic)
	}
	canned := cannedFor(lang)
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		summary = fmt.Sprintf(canned.summary, title)
	}

	points := NormalizePoints(decodePoints(out.Points))
	if len(points) < pointCount {
		points = append(points, canned.points...)
	}
	keyword := strings.TrimSpace(out.ImageKeyword)
	if keyword == "" {
		keyword = strings.TrimSpace(req.Topic)
	}

	return &cache.Explainer{
		Title:        title,
		Summary:      summary,
		Points:       points[:pointCount],
		ImageKeyword: keyword,
	}, nil
}

func decodePoints(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		items := make([]string, 0, len(list))
		for _, v := range list {
			if v == nil {
				continue
			}
			items = append(items, strings.TrimSpace(fmt.Sprint(v)))
		}
		return items
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return bulletSplit.Split(single, -1)
	}
	return nil
}

var (
	bulletSplit  = regexp.MustCompile(`\n+|•|-\s+`)
	bulletPrefix = regexp.MustCompile(`^[•\-\s]+`)
	spaces       = regexp.MustCompile(`\s+`)
)

// NormalizePoints cleans model bullets: strips bullet markers and question
// marks, drops short and duplicate entries, and keeps at most four.
func NormalizePoints(items []string) []string {
	cleaned := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		text := strings.TrimSpace(spaces.ReplaceAllString(item, " "))
		text = strings.TrimSpace(bulletPrefix.ReplaceAllString(text, ""))
		text = strings.ReplaceAll(text, "?", "")
		if utf8.RuneCountInString(text) < minPointLength {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, text)
		if len(cleaned) >= 4 {
			break
		}
	}
	return cleaned
}

type cannedExplainer struct {
	summary string
	points  []string
}

var cannedExplainers = map[string]cannedExplainer{
	"en": {
		summary: "%s is something we can understand with a few simple ideas.",
		points: []string{
			"It has a simple meaning.",
			"It has important parts or steps.",
			"It helps us understand how something works.",
		},
	},
	"hi": {
		summary: "%s को कुछ सरल विचारों से समझा जा सकता है।",
		points: []string{
			"इसका एक सरल अर्थ है।",
			"इसके महत्वपूर्ण भाग या चरण हैं।",
			"यह हमें समझने में मदद करता है।",
		},
	},
	"bn": {
		summary: "%s কয়েকটি সহজ ধারণা দিয়ে বোঝা যায়।",
		points: []string{
			"এর একটি সহজ অর্থ আছে।",
			"এর গুরুত্বপূর্ণ অংশ বা ধাপ আছে।",
			"এটা আমাদের বুঝতে সাহায্য করে।",
		},
	},
	"ta": {
		summary: "%s சில எளிய எண்ணங்களால் புரிந்து கொள்ளலாம்.",
		points: []string{
			"இதற்கு ஒரு எளிய பொருள் உள்ளது.",
			"இதில் முக்கியமான பகுதிகள் அல்லது படிகள் உள்ளன.",
			"இது நமக்கு புரிந்து கொள்ள உதவுகிறது.",
		},
	},
	"te": {
		summary: "%s కొన్ని సరళమైన ఆలోచనలతో అర్థం చేసుకోవచ్చు.",
		points: []string{
			"దీనికి ఒక సరళమైన అర్థం ఉంది.",
			"దీనికి ముఖ్యమైన భాగాలు లేదా దశలు ఉన్నాయి.",
			"ఇది మనకు అర్థం చేసుకోవడానికి సహాయపడుతుంది.",
		},
	},
}

func cannedFor(lang string) cannedExplainer {
	if c, ok := cannedExplainers[primaryCode(lang)]; ok {
		return c
	}
	return cannedExplainers["en"]
}

func fallbackTitle(topic string) string {
	if t := strings.TrimSpace(topic); t != "" {
		return t
	}
	return "Explanation"
}

// FallbackExplainer is the deterministic explainer substituted when generation fails.
func FallbackExplainer(lang, topic string) *cache.Explainer {
	canned := cannedFor(lang)
	title := fallbackTitle(topic)
	return &cache.Explainer{
		Title:        title,
		Summary:      fmt.Sprintf(canned.summary, title),
		Points:       append([]string(nil), canned.points...),
		ImageKeyword: strings.TrimSpace(topic),
	}
}

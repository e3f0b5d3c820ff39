package animation

import (
	"strings"

	"github.com/MimeLyc/kidz-gpt/internal/cache"
)

const (
	OpenerSceneID = 0
	CloserSceneID = 999

	MinDuration     = 2.0
	MaxDuration     = 5.0
	DefaultDuration = 4.0
	frameDuration   = 3.0

	// MaxScenes caps generated plans.
	MaxScenes = 8
)

// Draft is an animation scene as proposed by a generator, before sanitizing.
// SceneID is nil when the generator omitted it.
type Draft struct {
	SceneID  *int
	Action   string
	Loop     *bool
	Text     string
	Duration float64
}

func ClampDuration(d float64) float64 {
	if d <= 0 {
		d = DefaultDuration
	}
	if d < MinDuration {
		return MinDuration
	}
	if d > MaxDuration {
		return MaxDuration
	}
	return d
}

// Sanitize turns generator drafts into renderable scenes. Drafts without text
// are dropped and at most MaxScenes are kept.
func Sanitize(drafts []Draft, character string) []cache.AnimationScene {
	if len(drafts) > MaxScenes {
		drafts = drafts[:MaxScenes]
	}
	out := make([]cache.AnimationScene, 0, len(drafts))
	for idx, d := range drafts {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		action := NormalizeAction(d.Action)
		loop := Loops(action)
		if d.Loop != nil {
			loop = *d.Loop
		}
		id := idx + 1
		if d.SceneID != nil && *d.SceneID >= 0 {
			// an explicit 0 is the opener and must reach Frame as such
			id = *d.SceneID
		}
		out = append(out, cache.AnimationScene{
			SceneID:   id,
			Character: character,
			Animation: cache.Animation{Action: action, Loop: loop},
			Dialogue:  cache.Dialogue{Text: text},
			Duration:  ClampDuration(d.Duration),
		})
	}
	return out
}

// Heuristic maps storyboard dialogue to actions with the keyword Rules.
func Heuristic(scenes []cache.Scene, character string) []cache.AnimationScene {
	total := len(scenes)
	out := make([]cache.AnimationScene, 0, total)
	for idx, s := range scenes {
		text := strings.TrimSpace(s.Dialogue)
		if text == "" {
			continue
		}
		action := PickAction(text, idx, total)
		id := s.Index
		if id == 0 {
			id = idx + 1
		}
		out = append(out, cache.AnimationScene{
			SceneID:   id,
			Character: character,
			Animation: cache.Animation{Action: action, Loop: Loops(action)},
			Dialogue:  cache.Dialogue{Text: text},
			Duration:  DefaultDuration,
		})
	}
	return out
}

// Frame wraps body scenes with the greeting opener and goodbye closer,
// unless they are already present. An empty body gets one calm filler scene.
func Frame(scenes []cache.AnimationScene, lang, character, title string) []cache.AnimationScene {
	lines := framingFor(lang)
	body := make([]cache.AnimationScene, 0, len(scenes))
	var opener, closer *cache.AnimationScene
	for i := range scenes {
		s := scenes[i]
		switch s.SceneID {
		case OpenerSceneID:
			opener = &s
		case CloserSceneID:
			closer = &s
		default:
			body = append(body, s)
		}
	}

	if len(body) == 0 {
		body = append(body, cache.AnimationScene{
			SceneID:   1,
			Character: character,
			Animation: cache.Animation{Action: ActionNeutral, Loop: true},
			Dialogue:  cache.Dialogue{Text: lines.filler},
			Duration:  DefaultDuration,
		})
	}
	if opener == nil {
		text := lines.opener
		if title = strings.TrimSpace(title); title != "" && lines.titled != "" {
			text = strings.ReplaceAll(lines.titled, "{title}", title)
		}
		opener = &cache.AnimationScene{
			SceneID:   OpenerSceneID,
			Character: character,
			Animation: cache.Animation{Action: ActionHello},
			Dialogue:  cache.Dialogue{Text: text},
			Duration:  frameDuration,
		}
	}
	if closer == nil {
		closer = &cache.AnimationScene{
			SceneID:   CloserSceneID,
			Character: character,
			Animation: cache.Animation{Action: ActionBye},
			Dialogue:  cache.Dialogue{Text: lines.closer},
			Duration:  frameDuration,
		}
	}
	opener.Animation.Action = ActionHello
	closer.Animation.Action = ActionBye

	out := make([]cache.AnimationScene, 0, len(body)+2)
	out = append(out, *opener)
	out = append(out, body...)
	return append(out, *closer)
}

type framing struct {
	opener string
	titled string
	closer string
	filler string
}

var framings = map[string]framing{
	"en": {
		opener: "Hi! I'm your learning buddy. Let's learn together!",
		titled: "Hi! I'm your learning buddy. Today we'll learn about {title}.",
		closer: "Want to ask me another question?",
		filler: "Let's learn something fun together!",
	},
	"hi": {
		opener: "नमस्ते! मैं तुम्हारा सीखने वाला दोस्त हूँ। चलो साथ में सीखते हैं!",
		closer: "क्या तुम मुझसे एक और सवाल पूछना चाहोगे?",
		filler: "चलो साथ में कुछ मज़ेदार सीखते हैं!",
	},
	"bn": {
		opener: "নমস্কার! আমি তোমার শেখার বন্ধু। চলো একসাথে শিখি!",
		closer: "আমাকে আর একটা প্রশ্ন করতে চাও?",
		filler: "চলো একসাথে মজার কিছু শিখি!",
	},
	"ta": {
		opener: "வணக்கம்! நான் உன் கற்றல் நண்பன். வா, சேர்ந்து கற்போம்!",
		closer: "என்னிடம் இன்னொரு கேள்வி கேட்க விரும்புகிறாயா?",
		filler: "வா, சேர்ந்து ஏதாவது வேடிக்கையாகக் கற்போம்!",
	},
	"te": {
		opener: "నమస్తే! నేను నీ నేర్చుకునే స్నేహితుడిని. రా, కలిసి నేర్చుకుందాం!",
		closer: "నన్ను ఇంకో ప్రశ్న అడగాలనుకుంటున్నావా?",
		filler: "రా, కలిసి ఏదైనా సరదాగా నేర్చుకుందాం!",
	},
}

func framingFor(lang string) framing {
	if f, ok := framings[lang]; ok {
		return f
	}
	return framings["en"]
}

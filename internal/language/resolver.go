package language

import (
	"strings"

	"golang.org/x/text/language"
)

const DefaultLanguage = "en"

// Supported is the closed set the pipeline may resolve to.
var Supported = []string{"en", "hi", "bn", "ta", "te"}

var autoDeclared = map[string]struct{}{
	"":        {},
	"auto":    {},
	"detect":  {},
	"unknown": {},
}

// Signals carries the independent language hints for one query.
type Signals struct {
	Declared string
	Engine   string
	Text     string
}

// Rule yields a candidate code, or false to let the next rule decide.
type Rule struct {
	Name  string
	Apply func(r *Resolver, s Signals) (string, bool)
}

// Rules is evaluated top to bottom; the first rule to answer wins.
var Rules = []Rule{
	{Name: "engine", Apply: func(r *Resolver, s Signals) (string, bool) {
		return r.supportedCode(s.Engine)
	}},
	{Name: "auto-declared", Apply: func(r *Resolver, s Signals) (string, bool) {
		if !isAutoDeclared(s.Declared) {
			return "", false
		}
		return r.classify(s.Text)
	}},
	{Name: "declared", Apply: func(r *Resolver, s Signals) (string, bool) {
		return r.supportedCode(s.Declared)
	}},
	{Name: "declared-unsupported", Apply: func(r *Resolver, s Signals) (string, bool) {
		if isAutoDeclared(s.Declared) {
			return "", false
		}
		return r.classify(s.Text)
	}},
}

type Resolver struct {
	supported  map[string]struct{}
	fallback   string
	classifier Classifier
}

type Option func(*Resolver)

func WithDefault(code string) Option {
	return func(r *Resolver) {
		if code = Normalize(code); code != "" {
			r.fallback = code
		}
	}
}

func WithClassifier(c Classifier) Option {
	return func(r *Resolver) {
		if c != nil {
			r.classifier = c
		}
	}
}

func WithSupported(codes ...string) Option {
	return func(r *Resolver) {
		if len(codes) == 0 {
			return
		}
		r.supported = make(map[string]struct{}, len(codes))
		for _, c := range codes {
			if c = Normalize(c); c != "" {
				r.supported[c] = struct{}{}
			}
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		fallback:   DefaultLanguage,
		classifier: TextClassifier{},
	}
	WithSupported(Supported...)(r)
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if !r.IsSupported(r.fallback) {
		r.supported[r.fallback] = struct{}{}
	}
	return r
}

func (r *Resolver) Default() string { return r.fallback }

func (r *Resolver) IsSupported(code string) bool {
	_, ok := r.supported[code]
	return ok
}

// Resolve picks one supported code for the query.
func (r *Resolver) Resolve(s Signals) string {
	code := r.fallback
	for _, rule := range Rules {
		if got, ok := rule.Apply(r, s); ok {
			code = got
			break
		}
	}
	return r.finalize(code)
}

// finalize runs unconditionally so resolving an already resolved code is a no-op.
func (r *Resolver) finalize(code string) string {
	if got, ok := r.supportedCode(code); ok {
		return got
	}
	return r.fallback
}

func (r *Resolver) supportedCode(raw string) (string, bool) {
	code := Normalize(raw)
	if code == "" || !r.IsSupported(code) {
		return "", false
	}
	return code, true
}

func (r *Resolver) classify(text string) (string, bool) {
	if r.classifier == nil {
		return "", false
	}
	return r.supportedCode(r.classifier.Classify(text))
}

// Normalize lowercases a code and strips region and script subtags:
// "hi-IN" and "HI_in" both become "hi".
func Normalize(raw string) string {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if candidate == "" {
		return ""
	}
	candidate = strings.ReplaceAll(candidate, "_", "-")
	if tag, err := language.Parse(candidate); err == nil && tag != language.Und {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	primary, _, _ := strings.Cut(candidate, "-")
	return primary
}

func isAutoDeclared(declared string) bool {
	_, ok := autoDeclared[strings.ToLower(strings.TrimSpace(declared))]
	return ok
}

package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedClassifier(code string) Classifier {
	return ClassifierFunc(func(string) string { return code })
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		signals    Signals
		classified string
		want       string
	}{
		{name: "engine wins over declared", signals: Signals{Engine: "hi", Declared: "en"}, classified: "en", want: "hi"},
		{name: "unsupported engine ignored", signals: Signals{Engine: "fr", Declared: "ta"}, want: "ta"},
		{name: "auto declared uses classifier", signals: Signals{Declared: "auto", Text: "x"}, classified: "bn", want: "bn"},
		{name: "empty declared uses classifier", signals: Signals{Text: "x"}, classified: "te", want: "te"},
		{name: "auto declared with unsupported guess", signals: Signals{Declared: "detect"}, classified: "de", want: "en"},
		{name: "region stripped", signals: Signals{Declared: "hi-IN"}, want: "hi"},
		{name: "underscore region and case", signals: Signals{Declared: "TA_in"}, want: "ta"},
		{name: "unsupported declared falls to classifier", signals: Signals{Declared: "fr", Text: "Why is the sun bright?"}, classified: "en", want: "en"},
		{name: "unsupported declared falls to default", signals: Signals{Declared: "fr"}, want: "en"},
		{name: "declared beats classifier", signals: Signals{Declared: "bn", Text: "hello"}, classified: "en", want: "bn"},
		{name: "garbage", signals: Signals{Declared: "??", Engine: "zz-ZZ"}, want: "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(WithClassifier(fixedClassifier(tt.classified)))
			assert.Equal(t, tt.want, r.Resolve(tt.signals))
		})
	}
}

func TestResolver_ResolveIsIdempotent(t *testing.T) {
	r := NewResolver(WithClassifier(fixedClassifier("")))

	for _, declared := range []string{"en", "hi-IN", "fr", "auto", "TE", "bn_BD", ""} {
		first := r.Resolve(Signals{Declared: declared})
		second := r.Resolve(Signals{Declared: first})
		assert.Equal(t, first, second, declared)
		assert.True(t, r.IsSupported(first), declared)
	}
}

func TestResolver_CustomDefault(t *testing.T) {
	r := NewResolver(WithDefault("hi"), WithClassifier(fixedClassifier("")))

	assert.Equal(t, "hi", r.Default())
	assert.Equal(t, "hi", r.Resolve(Signals{Declared: "fr"}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hi", Normalize("hi-IN"))
	assert.Equal(t, "en", Normalize(" EN_us "))
	assert.Equal(t, "", Normalize("  "))
}

func TestTextClassifier_Scripts(t *testing.T) {
	c := TextClassifier{}

	assert.Equal(t, "hi", c.Classify("सूरज इतना चमकीला क्यों है?"))
	assert.Equal(t, "bn", c.Classify("সূর্য এত উজ্জ্বল কেন?"))
	assert.Equal(t, "ta", c.Classify("சூரியன் ஏன் பிரகாசமாக இருக்கிறது?"))
	assert.Equal(t, "te", c.Classify("సూర్యుడు ఎందుకు ప్రకాశవంతంగా ఉంటాడు?"))
	assert.Equal(t, "", c.Classify("   "))
}

func TestTextClassifier_English(t *testing.T) {
	c := TextClassifier{}
	text := "The sun is a giant ball of very hot gas and it shines because of the energy made deep inside its core every single day."

	assert.Equal(t, "en", c.Classify(text))
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pointsSchema = MustCompileSchema("points", `{
	"type": "object",
	"required": ["title", "points"],
	"properties": {
		"title": {"type": "string"},
		"points": {"type": "array", "items": {"type": "string"}}
	}
}`)

type pointsOut struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Points  []string `json:"points"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", raw: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "chatter", raw: "Sure! Here it is: {\"a\":1} Hope it helps.", want: `{"a":1}`},
		{name: "smart quotes", raw: "{“a”:“it’s”}", want: `{"a":"it's"}`},
		{name: "curly quotes inside valid strings", raw: `{"a":"call it “our star”"}`, want: `{"a":"call it “our star”"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.raw))
		})
	}
}

func TestDecodeJSON_RepairsTrailingComma(t *testing.T) {
	var out pointsOut
	err := DecodeJSON(`{"title": "Sun", "points": ["hot", "bright",],}`, pointsSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "Sun", out.Title)
	assert.Equal(t, []string{"hot", "bright"}, out.Points)
}

func TestDecodeJSON_KeepsCurlyQuotesInValues(t *testing.T) {
	var out pointsOut
	err := DecodeJSON(`{"title": "Sun", "summary": "People call it “our star”.", "points": ["hot"]}`, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "People call it “our star”.", out.Summary)
}

func TestDecodeJSON_SchemaMismatch(t *testing.T) {
	var out pointsOut
	err := DecodeJSON(`{"title": 42}`, pointsSchema, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "points output does not match schema")
}

func TestDecodeJSON_Empty(t *testing.T) {
	var out pointsOut
	assert.Error(t, DecodeJSON("   ", nil, &out))
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema("broken", `{"type": 12}`)
	assert.Error(t, err)
}

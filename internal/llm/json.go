package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates decoded model output.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// MustCompileSchema compiles an inline JSON schema and panics on error.
// Intended for package-level schema variables.
func MustCompileSchema(name, src string) *Schema {
	s, err := CompileSchema(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

func CompileSchema(name, src string) (*Schema, error) {
	compiled, err := jsonschema.CompileString(name+".json", src)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

func (s *Schema) Validate(raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := s.schema.Validate(payload); err != nil {
		return fmt.Errorf("%s output does not match schema: %w", s.name, err)
	}
	return nil
}

var fencePattern = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")

var smartQuotes = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// ExtractJSON strips code fences and chatter around the outermost JSON object.
// Curly quotes are straightened only when the object does not parse as is.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		text = text[start : end+1]
	}
	if json.Valid([]byte(text)) {
		return text
	}
	return smartQuotes.Replace(text)
}

// DecodeJSON extracts, repairs and validates a model reply, then unmarshals it into out.
func DecodeJSON(raw string, schema *Schema, out any) error {
	text := ExtractJSON(raw)
	if text == "" {
		return fmt.Errorf("empty model output")
	}

	data := []byte(text)
	if !json.Valid(data) {
		fixed, err := jsonrepair.JSONRepair(text)
		if err != nil {
			return fmt.Errorf("repair model output: %w", err)
		}
		data = []byte(fixed)
	}

	if schema != nil {
		if err := schema.Validate(data); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/alain/internal/jsonx"
)

// ErrNoJSON is returned when a reply contains no '{' at all.
var ErrNoJSON = errors.New("no JSON object in response")

// ErrMalformed is returned when a reply has an object that cannot be
// extracted or does not have the expected shape.
var ErrMalformed = errors.New("malformed JSON response")

// The schemas check value types only. Counts and required content are
// enforced by the generators' validators so that a short outline can still
// be repaired instead of rejected. Replies are passed through lenient
// before validation, so nulls and numeric strings never reach the schemas.
const outlineSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "overview": {"type": "string"},
    "objectives": {"type": "array", "items": {"type": "string"}},
    "prerequisites": {"type": "array", "items": {"type": "string"}},
    "setup": {
      "type": "object",
      "properties": {
        "requirements": {"type": "array", "items": {"type": "string"}},
        "environment": {"type": "array", "items": {"type": "string"}},
        "commands": {"type": "array", "items": {"type": "string"}}
      }
    },
    "outline": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "step": {"type": "integer"},
          "title": {"type": "string"},
          "type": {"type": "string"},
          "estimated_tokens": {"type": "integer"},
          "content_type": {"type": "string"}
        }
      }
    },
    "exercises": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "difficulty": {"type": "string"},
          "estimated_tokens": {"type": "integer"}
        }
      }
    },
    "assessments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "question": {"type": "string"},
          "options": {"type": "array", "items": {"type": "string"}},
          "correct_index": {"type": "integer"},
          "explanation": {"type": "string"}
        }
      }
    },
    "summary": {"type": "string"},
    "next_steps": {"type": "string"},
    "references": {"type": "array", "items": {"type": "string"}},
    "estimated_total_tokens": {"type": "integer"},
    "target_reading_time": {"type": "string"}
  }
}`

const sectionSchema = `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "section_number": {"type": "integer"},
    "title": {"type": "string"},
    "content": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["cell_type", "source"],
        "properties": {
          "cell_type": {"enum": ["markdown", "code"]},
          "source": {
            "anyOf": [
              {"type": "string"},
              {"type": "array", "items": {"type": "string"}}
            ]
          }
        }
      }
    },
    "callouts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "message": {"type": "string"}
        }
      }
    },
    "estimated_tokens": {"type": "integer"},
    "prerequisites_check": {"type": "array", "items": {"type": "string"}},
    "next_section_hint": {"type": "string"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema map[string]*jsonschema.Schema
	schemaErr      error
)

func schemaFor(name string) (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema = make(map[string]*jsonschema.Schema)
		c := jsonschema.NewCompiler()
		sources := map[string]string{"outline": outlineSchema, "section": sectionSchema}
		for n, src := range sources {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				schemaErr = fmt.Errorf("parse %s schema: %w", n, err)
				return
			}
			if err := c.AddResource("schema://"+n+".json", doc); err != nil {
				schemaErr = fmt.Errorf("add %s schema: %w", n, err)
				return
			}
		}
		for n := range sources {
			s, err := c.Compile("schema://" + n + ".json")
			if err != nil {
				schemaErr = fmt.Errorf("compile %s schema: %w", n, err)
				return
			}
			compiledSchema[n] = s
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return compiledSchema[name], nil
}

// ParseOutline turns a teacher reply into an Outline. Everything before the
// first '{' is dropped, the rest is parsed strictly and then with the loose
// extractor; the object must match the outline schema.
func ParseOutline(raw string) (*Outline, error) {
	trimmed, ok := jsonx.TrimToObject(raw)
	if !ok {
		return nil, ErrNoJSON
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		if err := jsonx.DecodeLoose(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	var o Outline
	if err := decodeChecked("outline", doc, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ParseSection turns a teacher reply into a Section. The reply is parsed
// strictly and then from its first balanced object; nothing looser is
// tried because a truncated section is not worth salvaging.
func ParseSection(raw string) (*Section, error) {
	var doc any
	if err := jsonx.Decode(raw, &doc); err != nil {
		if errors.Is(err, jsonx.ErrNoObject) {
			return nil, ErrNoJSON
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var s Section
	if err := decodeChecked("section", doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeChecked validates doc against the named schema and decodes it into v.
func decodeChecked(name string, doc any, v any) error {
	if _, isObject := doc.(map[string]any); !isObject {
		return fmt.Errorf("%w: top-level value is not an object", ErrMalformed)
	}
	sch, err := schemaFor(name)
	if err != nil {
		return err
	}
	doc = lenient(doc)
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}

// integerFields are the keys decoded into int fields.
var integerFields = map[string]bool{
	"step":                   true,
	"estimated_tokens":       true,
	"correct_index":          true,
	"estimated_total_tokens": true,
	"section_number":         true,
}

// lenient drops null members and null array items, and turns numeric
// strings or fractional numbers under integerFields into whole numbers.
// Anything else is left for the schema to judge.
func lenient(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			if integerFields[k] {
				val = wholeNumber(val)
			}
			out[k] = lenient(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, lenient(item))
			}
		}
		return out
	default:
		return v
	}
}

func wholeNumber(v any) any {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return v
		}
		return math.Round(f)
	case float64:
		return math.Round(t)
	default:
		return v
	}
}

// Package jsonx recovers JSON objects from free-form model output.
//
// Teacher models routinely wrap their JSON in prose or markdown fences, or
// stop mid-object when they run out of tokens. The helpers here find the
// first balanced object and never invent missing closing braces.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when the input contains no '{'.
var ErrNoObject = errors.New("no JSON object found")

// ErrUnbalanced is returned when an object starts but never closes.
var ErrUnbalanced = errors.New("unbalanced JSON object")

// TrimToObject drops everything before the first '{'.
func TrimToObject(s string) (string, bool) {
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return "", false
	}
	return s[i:], true
}

// StripFences removes a surrounding ```json (or bare ```) fence.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```JSON")
	t = strings.TrimPrefix(t, "```")
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}

// FirstObject returns the first balanced {...} span in s. Braces inside
// string literals are ignored.
func FirstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoObject
	}
	end := closingIndex(s, start)
	if end < 0 {
		return "", ErrUnbalanced
	}
	return s[start : end+1], nil
}

// HasObject reports whether s contains at least one balanced object.
func HasObject(s string) bool {
	_, err := FirstObject(s)
	return err == nil
}

// closingIndex returns the index of the brace that closes the object opened
// at s[start], or -1.
func closingIndex(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Decode unmarshals s into v, first strictly and then from the first
// balanced object it contains.
func Decode(s string, v any) error {
	trimmed := strings.TrimSpace(StripFences(s))
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	obj, err := FirstObject(trimmed)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}

// DecodeLoose is the lenient extractor used after a strict parse failed.
// Every depth-zero close after the first '{' is tried as a candidate end;
// as a last resort the span up to the final '}' is attempted.
func DecodeLoose(s string, v any) error {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				if err := json.Unmarshal([]byte(s[start:i+1]), v); err == nil {
					return nil
				}
			}
			if depth < 0 {
				depth = 0
			}
		}
	}

	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return ErrUnbalanced
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

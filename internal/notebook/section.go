package notebook

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Cell types.
const (
	CellMarkdown = "markdown"
	CellCode     = "code"
)

// Section is the generated content for one outline step.
type Section struct {
	SectionNumber      int       `json:"section_number"`
	Title              string    `json:"title"`
	Content            []Cell    `json:"content"`
	Callouts           []Callout `json:"callouts"`
	EstimatedTokens    int       `json:"estimated_tokens"`
	PrerequisitesCheck []string  `json:"prerequisites_check"`
	NextSectionHint    string    `json:"next_section_hint"`

	// Fallback marks a stub synthesized after the teacher reply could not
	// be used.
	Fallback bool `json:"fallback,omitempty"`
}

// Cell is one markdown or code cell of a section.
type Cell struct {
	CellType string `json:"cell_type"`
	Source   Text   `json:"source"`
}

// Callout is a highlighted tip, warning or note.
type Callout struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HasCellType reports whether any cell in s has the given type.
func (s *Section) HasCellType(cellType string) bool {
	if s == nil {
		return false
	}
	for _, c := range s.Content {
		if c.CellType == cellType {
			return true
		}
	}
	return false
}

// Text is a cell source. It decodes from a JSON string or from an array of
// lines, which some models emit in ipynb style, and always encodes as a
// string.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return err
	}
	*t = Text(joinLines(lines))
	return nil
}

// joinLines concatenates ipynb-style lines. Lines are expected to carry
// their own trailing newline; a list of bare lines is joined with "\n".
func joinLines(lines []string) string {
	bare := true
	for _, l := range lines[:max(len(lines)-1, 0)] {
		if strings.HasSuffix(l, "\n") {
			bare = false
			break
		}
	}
	if bare && len(lines) > 1 {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines, "")
}

func itoa(n int) string { return strconv.Itoa(n) }

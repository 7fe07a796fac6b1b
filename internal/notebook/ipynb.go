package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Notebook is an nbformat 4 document.
type Notebook struct {
	Cells         []NotebookCell `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// NotebookCell is one ipynb cell. Outputs and execution counts are carried
// through untouched when a notebook is loaded and rewritten.
type NotebookCell struct {
	CellType       string            `json:"cell_type"`
	Metadata       map[string]any    `json:"metadata"`
	Source         Lines             `json:"source"`
	ExecutionCount *int              `json:"execution_count,omitempty"`
	Outputs        []json.RawMessage `json:"outputs,omitempty"`
}

// MarshalJSON emits the fields nbformat requires for each cell type: code
// cells always carry outputs and a (possibly null) execution_count.
func (c NotebookCell) MarshalJSON() ([]byte, error) {
	type base struct {
		CellType string         `json:"cell_type"`
		Metadata map[string]any `json:"metadata"`
		Source   Lines          `json:"source"`
	}
	b := base{CellType: c.CellType, Metadata: c.Metadata, Source: c.Source}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	if c.CellType != CellCode {
		return json.Marshal(b)
	}

	outputs := c.Outputs
	if outputs == nil {
		outputs = []json.RawMessage{}
	}
	return json.Marshal(struct {
		base
		ExecutionCount *int              `json:"execution_count"`
		Outputs        []json.RawMessage `json:"outputs"`
	}{b, c.ExecutionCount, outputs})
}

// Text returns the cell source as a single string.
func (c NotebookCell) Text() string { return c.Source.String() }

// Lines is an ipynb multiline string. It decodes from either a string or an
// array of lines and encodes as an array.
type Lines []string

// SplitLines splits s into ipynb lines, each but the last keeping its "\n".
func SplitLines(s string) Lines {
	if s == "" {
		return Lines{}
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return Lines(parts)
}

// String joins the lines.
func (l Lines) String() string { return strings.Join(l, "") }

// MarshalJSON implements json.Marshaler.
func (l Lines) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lines) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = SplitLines(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("cell source must be a string or list of strings: %w", err)
	}
	*l = Lines(arr)
	return nil
}

// NewCell builds a cell from a source string.
func NewCell(cellType, source string) NotebookCell {
	return NotebookCell{CellType: cellType, Metadata: map[string]any{}, Source: SplitLines(source)}
}

// Clone returns a deep copy of the cell list; metadata maps and outputs are
// shared.
func (n *Notebook) Clone() *Notebook {
	c := *n
	c.Cells = make([]NotebookCell, len(n.Cells))
	for i, cell := range n.Cells {
		cell.Source = append(Lines(nil), cell.Source...)
		c.Cells[i] = cell
	}
	return &c
}

// Parse decodes an ipynb document.
func Parse(data []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	if nb.NBFormat == 0 {
		return nil, fmt.Errorf("decode notebook: missing nbformat")
	}
	return &nb, nil
}

// Marshal encodes the notebook with the one-space indent Jupyter uses.
func (n *Notebook) Marshal() ([]byte, error) {
	out := *n
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if out.Cells == nil {
		out.Cells = []NotebookCell{}
	}
	b, err := json.MarshalIndent(&out, "", " ")
	if err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return append(b, '\n'), nil
}

// Load reads an .ipynb file.
func Load(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	return Parse(data)
}

// Save writes the notebook to path.
func (n *Notebook) Save(path string) error {
	data, err := n.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write notebook: %w", err)
	}
	return nil
}

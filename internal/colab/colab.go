// Package colab checks assembled notebooks for code that breaks under
// Google Colab and rewrites the offending cells.
package colab

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/jsonx"
	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
)

// Issue is one hazard found in a code cell.
type Issue struct {
	Type        string   `json:"type" yaml:"type"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	CellIndex   int      `json:"cellIndex" yaml:"cell_index"`
	AutoFixable bool     `json:"autoFixable" yaml:"auto_fixable"`
}

// Result is the outcome of a validation pass.
type Result struct {
	Compatible bool `json:"isCompatible" yaml:"compatible"`
	// Issues are the hazards still present in the returned notebook.
	Issues []Issue `json:"issues" yaml:"issues"`
	// Repaired lists the hazards found before fixes were applied. It is
	// empty when the notebook was accepted as-is.
	Repaired []Issue `json:"repaired,omitempty" yaml:"repaired,omitempty"`
	// Fixed is the rewritten notebook, nil when no fixes were needed.
	Fixed *notebook.Notebook `json:"-" yaml:"-"`
}

// CriticalCount counts critical issues.
func CriticalCount(issues []Issue) int {
	n := 0
	for _, i := range issues {
		if i.Severity == Critical {
			n++
		}
	}
	return n
}

const reviewSystemPrompt = `You rewrite Python notebook cells so they run cleanly in Google Colab. Respond ONLY with JSON: {"fixed": "<rewritten code>"}. Preserve code fences where present. Do not add explanations.`

var reviewSchema = &llm.Schema{
	Name:        "colab_fix",
	Description: "A rewritten notebook cell",
	Definition: map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"fixed": map[string]any{"type": "string"}},
		"required":             []any{"fixed"},
		"additionalProperties": false,
	},
}

// Validator detects and fixes Colab hazards.
type Validator struct {
	tolerance int
	reviewer  llm.Provider
	caps      llm.Capabilities
	logger    zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerance sets how many critical issues are accepted without fixing.
func WithTolerance(n int) Option {
	return func(v *Validator) { v.tolerance = max(n, 0) }
}

// WithReviewer enables the model polish of rewritten cells. p is used as
// is; wrap it with llm.WithRetry for retries.
func WithReviewer(p llm.Provider, caps llm.Capabilities) Option {
	return func(v *Validator) {
		v.reviewer = p
		v.caps = caps
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator with zero tolerance and no model review.
func New(opts ...Option) *Validator {
	v := &Validator{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks nb. When the critical count exceeds the tolerance a fixed
// copy is produced and re-checked; nb itself is never modified.
func (v *Validator) Validate(ctx context.Context, nb *notebook.Notebook) *Result {
	issues := DetectIssues(nb)
	if CriticalCount(issues) <= v.tolerance {
		return &Result{Compatible: true, Issues: issues}
	}

	fixed := v.ApplyFixes(ctx, nb, issues)
	post := DetectIssues(fixed)
	compatible := CriticalCount(post) <= v.tolerance

	v.logger.Info().
		Int("issues", len(issues)).
		Int("remaining_critical", CriticalCount(post)).
		Bool("compatible", compatible).
		Msg("colab fixes applied")

	return &Result{
		Compatible: compatible,
		Issues:     post,
		Repaired:   issues,
		Fixed:      fixed,
	}
}

// DetectIssues scans every code cell against the hazard table.
func DetectIssues(nb *notebook.Notebook) []Issue {
	var issues []Issue
	for i, cell := range nb.Cells {
		if cell.CellType != notebook.CellCode {
			continue
		}
		issues = append(issues, detectSource(cell.Text(), i)...)
	}
	return issues
}

func detectSource(src string, index int) []Issue {
	var issues []Issue
	for _, h := range hazards {
		if !h.pattern.MatchString(src) {
			continue
		}
		if h.guarded != nil && h.guarded(src) {
			continue
		}
		issues = append(issues, Issue{
			Type:        h.kind,
			Severity:    h.severity,
			Description: h.description,
			CellIndex:   index,
			AutoFixable: h.fix != nil,
		})
	}
	return issues
}

var definesInColab = regexp.MustCompile(`(?m)^IN_COLAB\s*=`)

// ApplyFixes returns a copy of nb with every auto-fixable issue rewritten.
// An environment detection cell is prepended unless the first code cell
// already defines IN_COLAB; issue indexes refer to nb.
func (v *Validator) ApplyFixes(ctx context.Context, nb *notebook.Notebook, issues []Issue) *notebook.Notebook {
	fixed := nb.Clone()

	offset := 0
	if !firstCodeDefinesInColab(fixed) {
		env := notebook.NewCell(notebook.CellCode, notebook.EnvCellSource)
		fixed.Cells = append([]notebook.NotebookCell{env}, fixed.Cells...)
		offset = 1
	}

	for _, issue := range issues {
		if !issue.AutoFixable {
			continue
		}
		idx := issue.CellIndex + offset
		if idx < 0 || idx >= len(fixed.Cells) || fixed.Cells[idx].CellType != notebook.CellCode {
			continue
		}
		h, ok := hazardFor(issue.Type)
		if !ok || h.fix == nil {
			continue
		}

		src := h.fix(strings.ReplaceAll(fixed.Cells[idx].Text(), "\r\n", "\n"))
		if reviewed, ok := v.review(ctx, src, issue.Type); ok {
			src = reviewed
		}
		fixed.Cells[idx].Source = notebook.SplitLines(src)
	}
	return fixed
}

func firstCodeDefinesInColab(nb *notebook.Notebook) bool {
	for _, c := range nb.Cells {
		if c.CellType == notebook.CellCode {
			return definesInColab.MatchString(c.Text())
		}
	}
	return false
}

// review asks the model to polish a rewritten cell. The reply is used only
// when it parses and introduces no critical hazard.
func (v *Validator) review(ctx context.Context, src, issueType string) (string, bool) {
	if v.reviewer == nil {
		return "", false
	}

	req := v.caps.Apply(llm.Request{
		System:      reviewSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf("Issue type: %s\n---\n%s", issueType, src)}},
		Temperature: llm.Float(0.1),
		JSONMode:    true,
		Schema:      reviewSchema,
	})
	resp, err := v.reviewer.Generate(llm.WithPurpose(ctx, llm.PurposeColabReview), req)
	if err != nil {
		v.logger.Warn().Err(err).Str("issue", issueType).Msg("colab review failed, keeping deterministic fix")
		return "", false
	}

	var out struct {
		Fixed *string `json:"fixed"`
	}
	if err := jsonx.Decode(resp.Content, &out); err != nil || out.Fixed == nil {
		v.logger.Warn().Str("issue", issueType).Msg("colab review reply unusable")
		return "", false
	}
	fixed := strings.TrimRight(*out.Fixed, " \t\r\n")
	if strings.TrimSpace(fixed) == "" {
		return "", false
	}
	if CriticalCount(detectSource(fixed, 0)) > 0 {
		v.logger.Warn().Str("issue", issueType).Msg("colab review reintroduced a hazard")
		return "", false
	}
	return fixed, true
}

package colab

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/alain/internal/notebook"
)

// Report renders a markdown compatibility report.
func Report(r *Result) string {
	var b strings.Builder
	status := "Issues Found"
	if r.Compatible {
		status = "Compatible"
	}

	b.WriteString("# Colab Compatibility Report\n\n")
	fmt.Fprintf(&b, "**Status: %s**\n", status)
	fmt.Fprintf(&b, "**Critical Issues: %d**\n", CriticalCount(r.Issues))
	fmt.Fprintf(&b, "**Total Issues: %d**\n", len(r.Issues))

	if len(r.Issues) > 0 {
		b.WriteString("\n")
		writeIssues(&b, r.Issues)
	}
	if len(r.Repaired) > 0 {
		b.WriteString("\n## Auto-fixed\n\n")
		writeIssues(&b, r.Repaired)
	}

	b.WriteString("\n")
	switch {
	case r.Compatible && r.Fixed == nil:
		b.WriteString("Ready for Colab deployment!\n")
	case r.Compatible:
		b.WriteString("Auto-fixes applied. Please test in Colab.\n")
	default:
		b.WriteString("Critical issues remain after auto-fix. Manual review required.\n")
	}
	return b.String()
}

func writeIssues(b *strings.Builder, issues []Issue) {
	for i, issue := range issues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%d. %s (%s) in cell %d\n   %s\n", i+1, issue.Type, issue.Severity, issue.CellIndex, issue.Description)
	}
}

// FixedPath returns where ValidateFile writes the fixed copy of path.
func FixedPath(path string) string {
	return strings.TrimSuffix(path, ".ipynb") + ".colab.ipynb"
}

// ValidateFile validates the notebook at path. When fixes were applied the
// fixed copy is written to FixedPath(path) and that path is returned.
func (v *Validator) ValidateFile(ctx context.Context, path string) (*Result, string, error) {
	nb, err := notebook.Load(path)
	if err != nil {
		return nil, "", err
	}

	res := v.Validate(ctx, nb)
	if res.Fixed == nil {
		return res, "", nil
	}

	out := FixedPath(path)
	if err := res.Fixed.Save(out); err != nil {
		return res, "", err
	}
	return res, out, nil
}

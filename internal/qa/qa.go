// Package qa is the deterministic structural audit run over an outline and
// its generated sections before any model-based review.
package qa

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/notebook"
)

// Status is a gate verdict.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

// MinMarkdownChars is the markdown length below which a section is flagged.
const MinMarkdownChars = 800

// PlaceholderPattern is the regex the placeholder scan applies to every
// cell.
const PlaceholderPattern = `(TODO|TBD|FIXME)`

var placeholder = regexp.MustCompile(`(?i)` + PlaceholderPattern)

// Report is the QA gate result.
type Report struct {
	NotebookTitle      string             `json:"notebook_title" yaml:"notebook_title"`
	Timestamp          string             `json:"qa_timestamp" yaml:"qa_timestamp"`
	OverallStatus      Status             `json:"overall_status" yaml:"overall_status"`
	Summary            string             `json:"summary" yaml:"summary"`
	Metrics            Metrics            `json:"metrics" yaml:"metrics"`
	QualityGates       QualityGates       `json:"quality_gates" yaml:"quality_gates"`
	BlockingIssues     []string           `json:"blocking_issues" yaml:"blocking_issues"`
	WarningIssues      []string           `json:"warning_issues" yaml:"warning_issues"`
	RecommendedActions RecommendedActions `json:"recommended_actions" yaml:"recommended_actions"`
	AutomationHooks    AutomationHooks    `json:"automation_hooks" yaml:"automation_hooks"`
	SourceTrace        SourceTrace        `json:"source_trace" yaml:"source_trace"`
}

// Metrics are the counts the gate computed.
type Metrics struct {
	OutlineSteps          int     `json:"outline_steps" yaml:"outline_steps"`
	SectionsExpected      int     `json:"sections_expected" yaml:"sections_expected"`
	SectionsReceived      int     `json:"sections_received" yaml:"sections_received"`
	ObjectivesInOutline   int     `json:"objectives_in_outline" yaml:"objectives_in_outline"`
	ExercisesCount        int     `json:"exercises_count" yaml:"exercises_count"`
	AssessmentsCount      int     `json:"assessments_count" yaml:"assessments_count"`
	AvgSectionLengthChars int     `json:"avg_section_length_chars" yaml:"avg_section_length_chars"`
	MarkdownRatioEstimate float64 `json:"markdown_ratio_estimate" yaml:"markdown_ratio_estimate"`
}

// Gate is one named check with its notes.
type Gate struct {
	Status Status   `json:"status" yaml:"status"`
	Notes  []string `json:"notes" yaml:"notes"`
}

// QualityGates groups the individual checks.
type QualityGates struct {
	OutlineCompleteness Gate `json:"outline_completeness" yaml:"outline_completeness"`
	SectionAlignment    Gate `json:"section_alignment" yaml:"section_alignment"`
	PlaceholderScan     Gate `json:"placeholder_scan" yaml:"placeholder_scan"`
}

// RecommendedActions splits issues by urgency.
type RecommendedActions struct {
	MustFix   []string `json:"must_fix" yaml:"must_fix"`
	ShouldFix []string `json:"should_fix" yaml:"should_fix"`
}

// AutomationHooks lists checks downstream tooling can re-run.
type AutomationHooks struct {
	RegexChecks []string `json:"regex_checks" yaml:"regex_checks"`
}

// SourceTrace identifies what was audited.
type SourceTrace struct {
	OutlineReference string   `json:"outline_reference" yaml:"outline_reference"`
	SectionIDs       []string `json:"section_ids" yaml:"section_ids"`
}

// Evaluator audits outlines and sections. It holds no state besides its clock
// and logger, so one Evaluator can serve concurrent runs.
type Evaluator struct {
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock used for the report timestamp.
func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Evaluator) { e.logger = l } }

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate audits o against sections. It never modifies its inputs, and for
// a fixed clock identical inputs give identical reports.
func (e *Evaluator) Evaluate(o *notebook.Outline, sections []*notebook.Section) *Report {
	if o == nil {
		o = &notebook.Outline{}
	}
	steps := len(o.Steps)
	received := len(sections)

	blocking := []string{}
	var outlineWarnings []string

	if strings.TrimSpace(o.Title) == "" {
		blocking = append(blocking, "Outline is missing a title")
	}
	if steps == 0 {
		blocking = append(blocking, "Outline contains no steps")
	}
	if len(o.Setup.Requirements) == 0 {
		outlineWarnings = append(outlineWarnings, "Setup requirements list is empty")
	}
	if o.Summary == "" || o.NextSteps == "" {
		outlineWarnings = append(outlineWarnings, "Summary or next steps are missing from the outline")
	}
	if len(o.Exercises) == 0 {
		outlineWarnings = append(outlineWarnings, "No exercises defined in outline")
	}

	ins := inspectSections(steps, sections)
	placeholderWarnings := scanPlaceholders(sections)

	var coverageWarnings []string
	if received == 0 {
		blocking = append(blocking, "No generated sections found")
	} else if received != steps {
		coverageWarnings = append(coverageWarnings, fmt.Sprintf("Expected %d sections but received %d", steps, received))
	}

	warnings := concat(outlineWarnings, ins.warnings, placeholderWarnings, coverageWarnings)
	status := statusFor(blocking, warnings)

	var outlineBlocking, sectionBlocking []string
	for _, b := range blocking {
		if strings.Contains(b, "Outline") {
			outlineBlocking = append(outlineBlocking, b)
		}
		if strings.Contains(b, "sections") {
			sectionBlocking = append(sectionBlocking, b)
		}
	}
	alignment := concat(ins.warnings, coverageWarnings)

	ids := make([]string, len(sections))
	for i, s := range sections {
		if s == nil {
			ids[i] = "section-unknown"
			continue
		}
		ids[i] = fmt.Sprintf("section-%d", s.SectionNumber)
	}

	title := o.Title
	if title == "" {
		title = "Unknown Notebook"
	}

	r := &Report{
		NotebookTitle: title,
		Timestamp:     e.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		OverallStatus: status,
		Summary:       summarize(status, blocking, warnings),
		Metrics: Metrics{
			OutlineSteps:          steps,
			SectionsExpected:      steps,
			SectionsReceived:      received,
			ObjectivesInOutline:   len(o.Objectives),
			ExercisesCount:        len(o.Exercises),
			AssessmentsCount:      len(o.Assessments),
			AvgSectionLengthChars: ins.avgMarkdown,
			MarkdownRatioEstimate: math.Round(ins.markdownRatio*100) / 100,
		},
		QualityGates: QualityGates{
			OutlineCompleteness: Gate{Status: statusFor(blocking, outlineWarnings), Notes: concat(outlineBlocking, outlineWarnings)},
			SectionAlignment:    Gate{Status: statusFor(sectionBlocking, alignment), Notes: alignment},
			PlaceholderScan:     Gate{Status: statusFor(nil, placeholderWarnings), Notes: concat(placeholderWarnings)},
		},
		BlockingIssues: blocking,
		WarningIssues:  warnings,
		RecommendedActions: RecommendedActions{
			MustFix:   blocking,
			ShouldFix: warnings,
		},
		AutomationHooks: AutomationHooks{RegexChecks: []string{PlaceholderPattern}},
		SourceTrace: SourceTrace{
			OutlineReference: "qa.outline",
			SectionIDs:       ids,
		},
	}

	e.logger.Info().
		Str("status", string(status)).
		Int("outline_steps", steps).
		Int("sections", received).
		Msg("qa gate result")
	return r
}

type inspection struct {
	warnings      []string
	avgMarkdown   int
	markdownRatio float64
}

func inspectSections(expected int, sections []*notebook.Section) inspection {
	if len(sections) == 0 {
		return inspection{}
	}

	var ins inspection
	markdownChars, codeChars, total := 0, 0, 0
	for i, s := range sections {
		mdLen, hasCode := 0, false
		if s != nil {
			for _, c := range s.Content {
				n := utf8.RuneCountInString(string(c.Source))
				switch c.CellType {
				case notebook.CellMarkdown:
					mdLen += n
					markdownChars += n
				case notebook.CellCode:
					codeChars += n
					hasCode = true
				}
			}
		}
		total += mdLen
		if mdLen < MinMarkdownChars {
			ins.warnings = append(ins.warnings, fmt.Sprintf("Section %d markdown body is shorter than %d characters", i+1, MinMarkdownChars))
		}
		if !hasCode {
			ins.warnings = append(ins.warnings, fmt.Sprintf("Section %d does not include a code cell", i+1))
		}
	}
	if len(sections) < expected {
		ins.warnings = append(ins.warnings, "Not all outline steps currently have generated sections")
	}

	all := markdownChars + codeChars
	if all == 0 {
		all = 1
	}
	ins.avgMarkdown = int(math.Round(float64(total) / float64(len(sections))))
	ins.markdownRatio = float64(markdownChars) / float64(all)
	return ins
}

func scanPlaceholders(sections []*notebook.Section) []string {
	var warnings []string
	for i, s := range sections {
		if s == nil {
			continue
		}
		for _, c := range s.Content {
			if placeholder.MatchString(string(c.Source)) {
				warnings = append(warnings, fmt.Sprintf("Placeholder text found in section %d", i+1))
			}
		}
	}
	return warnings
}

func statusFor(blocking, warnings []string) Status {
	switch {
	case len(blocking) > 0:
		return Fail
	case len(warnings) > 0:
		return Warn
	}
	return Pass
}

func summarize(status Status, blocking, warnings []string) string {
	switch status {
	case Fail:
		return "QA gate failed: " + strings.Join(blocking, "; ")
	case Warn:
		return strings.Join(warnings, "; ")
	}
	return "QA gate passed."
}

// concat joins lists into a non-nil slice so reports encode [] rather than
// null.
func concat(lists ...[]string) []string {
	out := []string{}
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

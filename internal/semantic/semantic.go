// Package semantic asks a reviewer model whether a generated notebook
// contains filler or placeholder teaching material. The check is advisory:
// every failure mode degrades to a warn report instead of an error.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/jsonx"
	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
	"github.com/abhisek/alain/internal/store"
)

// Status is the reviewer verdict.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

const (
	DefaultModel = "gpt-oss-20b"

	// ExcerptChars bounds the markdown excerpt sent per section.
	ExcerptChars = 800

	maxTokens     = 400
	maxObjectives = 6
)

// Report is the semantic review result.
type Report struct {
	Status          Status   `json:"status" yaml:"status"`
	Issues          []string `json:"issues" yaml:"issues"`
	FillerSections  []string `json:"fillerSections" yaml:"filler_sections"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
	RawResponse     string   `json:"rawResponse" yaml:"raw_response"`
}

// Endpoint is the reviewer model location. An empty BaseURL means the Poe
// marketplace and an empty Model means DefaultModel.
type Endpoint struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Input is what gets reviewed.
type Input struct {
	Outline  *notebook.Outline
	Sections []*notebook.Section
	// Notebook is optional; its metadata title wins over the outline title.
	Notebook *notebook.Notebook
}

const systemPrompt = "You are a rigorous notebook quality reviewer. Respond ONLY with JSON matching the response schema."

// Validator runs the semantic review.
type Validator struct {
	endpoint      Endpoint
	provider      llm.Provider
	events        store.EventRepo
	noTemperature []llm.ModelRule
	logger        zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithProvider overrides the provider built from the endpoint. The
// endpoint is still consulted for the skip rules.
func WithProvider(p llm.Provider) Option {
	return func(v *Validator) { v.provider = p }
}

// WithEventRepo records reviewer calls in the LLM event log.
func WithEventRepo(repo store.EventRepo) Option {
	return func(v *Validator) { v.events = repo }
}

// WithNoTemperatureModels sets the temperature denylist.
func WithNoTemperatureModels(rules []llm.ModelRule) Option {
	return func(v *Validator) { v.noTemperature = rules }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator for ep.
func New(ep Endpoint, opts ...Option) *Validator {
	ep.BaseURL = llm.NormalizeBaseURL(ep.BaseURL)
	if ep.Model == "" {
		ep.Model = DefaultModel
	}
	v := &Validator{
		endpoint:      ep,
		noTemperature: llm.ParseModelRules(llm.DefaultNoTemperatureModels),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Evaluate reviews in. It never returns an error: a missing key, a local
// endpoint, a failed call and an unparseable reply all yield a warn report.
func (v *Validator) Evaluate(ctx context.Context, in Input) *Report {
	if v.endpoint.APIKey == "" {
		v.logger.Warn().Str("reason", "missing_api_key").Msg("semantic qa skipped")
		return degraded("Semantic QA skipped: missing API key.",
			"Provide POE_API_KEY or OPENAI_API_KEY to enable semantic QA.")
	}
	if llm.IsLocalBaseURL(v.endpoint.BaseURL) {
		v.logger.Info().Str("base_url", v.endpoint.BaseURL).Msg("semantic qa skipped for local base url")
		return degraded("Semantic QA skipped for local base URL.",
			"Run semantic QA in an environment that can call the Poe API.")
	}

	p, err := v.reviewer(ctx)
	if err != nil {
		return v.failed(err)
	}

	caps := llm.ResolveCapabilities("", v.endpoint.BaseURL, v.endpoint.Model, v.noTemperature)
	req := caps.Apply(llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(in)}},
		MaxTokens:   maxTokens,
		Temperature: llm.Float(0),
		JSONMode:    true,
	})

	resp, err := p.Generate(llm.WithPurpose(ctx, llm.PurposeSemanticQA), req)
	if err != nil {
		return v.failed(err)
	}

	r := ParseResponse(resp.Content)
	r.RawResponse = resp.Content
	v.logger.Info().
		Str("status", string(r.Status)).
		Int("issues", len(r.Issues)).
		Int("filler_sections", len(r.FillerSections)).
		Msg("semantic qa result")
	return r
}

func (v *Validator) reviewer(ctx context.Context) (llm.Provider, error) {
	if v.provider != nil {
		return v.provider, nil
	}
	return llm.NewProvider(ctx, llm.Config{
		Provider: "openai",
		BaseURL:  v.endpoint.BaseURL,
		APIKey:   v.endpoint.APIKey,
		Model:    v.endpoint.Model,
		Timeout:  v.endpoint.Timeout,
	}, v.events, v.logger)
}

func (v *Validator) failed(err error) *Report {
	v.logger.Error().Err(err).Msg("semantic qa request failed")
	return degraded(fmt.Sprintf("Semantic QA request failed: %v", err),
		"Retry semantic QA once network/service is available.")
}

func degraded(issue, recommendation string) *Report {
	return &Report{
		Status:          Warn,
		Issues:          []string{issue},
		FillerSections:  []string{},
		Recommendations: []string{recommendation},
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// BuildPrompt renders the audit request for in.
func BuildPrompt(in Input) string {
	o := in.Outline
	if o == nil {
		o = &notebook.Outline{}
	}

	objectives := "Not provided"
	if len(o.Objectives) > 0 {
		objectives = strings.Join(o.Objectives[:min(len(o.Objectives), maxObjectives)], "\n- ")
	}

	summaries := make([]string, 0, len(in.Sections))
	for _, s := range in.Sections {
		if s == nil {
			continue
		}
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		summaries = append(summaries, fmt.Sprintf("Section %d: %s\nExcerpt: %s", s.SectionNumber, title, Excerpt(s)))
	}

	return fmt.Sprintf(`You are auditing a generated Jupyter notebook intended for production.
Notebook Title: %s
Objectives:
- %s

Sections:
%s

Tasks:
1. Identify any filler, placeholder, or repetitive content that indicates the model did not produce complete instructional material.
2. Flag missing explanations, undefined acronyms, or steps that simply restate the section title without depth.
3. Return a JSON object with fields:
{
  "status": "pass" | "warn" | "fail",
  "issues": ["..."],
  "filler_sections": ["Section N: reason"],
  "recommendations": ["actionable follow-ups"]
}
Status guidelines:
- "pass" when no issues are detected.
- "warn" when minor follow-up is recommended.
- "fail" when the notebook contains clear filler/incomplete sections.
Respond with JSON only.`, notebookTitle(in.Notebook, o), objectives, strings.Join(summaries, "\n\n"))
}

// Excerpt returns the first ExcerptChars characters of the section's
// markdown with whitespace runs collapsed.
func Excerpt(s *notebook.Section) string {
	var parts []string
	for _, c := range s.Content {
		if c.CellType == notebook.CellMarkdown {
			parts = append(parts, string(c.Source))
		}
	}
	md := []rune(strings.Join(parts, "\n"))
	if len(md) > ExcerptChars {
		md = md[:ExcerptChars]
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(string(md), " "))
}

func notebookTitle(nb *notebook.Notebook, o *notebook.Outline) string {
	if nb != nil {
		if t, ok := nb.Metadata["title"].(string); ok && t != "" {
			return t
		}
	}
	if o.Title != "" {
		return o.Title
	}
	return "Untitled Notebook"
}

// ParseResponse decodes a reviewer reply, strictly first and then with the
// loose extractor. RawResponse is left for the caller to fill.
func ParseResponse(raw string) *Report {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		data = nil
		if err := jsonx.DecodeLoose(raw, &data); err != nil {
			return &Report{
				Status:          Warn,
				Issues:          []string{"Semantic QA returned an unparseable response."},
				FillerSections:  []string{},
				Recommendations: []string{"Inspect notebook manually for filler content."},
			}
		}
	}
	return normalize(data)
}

func normalize(data map[string]any) *Report {
	status := Warn
	if s, ok := data["status"].(string); ok {
		switch Status(s) {
		case Pass, Warn, Fail:
			status = Status(s)
		}
	}
	return &Report{
		Status:          status,
		Issues:          stringList(data["issues"]),
		FillerSections:  stringList(data["filler_sections"]),
		Recommendations: stringList(data["recommendations"]),
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case nil:
			out = append(out, "null")
		default:
			b, err := json.Marshal(t)
			if err != nil {
				out = append(out, fmt.Sprint(t))
				continue
			}
			out = append(out, string(b))
		}
	}
	return out
}

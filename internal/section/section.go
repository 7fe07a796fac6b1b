// Package section generates the content of one outline step. A reply that
// cannot be used never fails the notebook: it degrades to a fallback stub.
package section

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
	"github.com/abhisek/alain/internal/prompts"
	"github.com/abhisek/alain/internal/review"
)

// Token bounds for one section.
const (
	TokenLimit = 1000
	MinTokens  = 800

	// FallbackTokens is the estimate given to stubs; it sits inside
	// [MinTokens, TokenLimit].
	FallbackTokens = 900
)

const (
	defaultTemperature   = 0.2
	defaultRetryAttempts = 4
	excerptRunes         = 500
	reviewKind           = "section"
)

var (
	// ErrInvalidSectionNumber is returned for section numbers below 1.
	ErrInvalidSectionNumber = errors.New("section number must be at least 1")
	// ErrMissingModelReference is returned when no model reference is given.
	ErrMissingModelReference = errors.New("model reference is required")
)

// GenerationError reports that the gateway gave up on a section.
type GenerationError struct {
	SectionNumber int
	Err           error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate section %d: %v", e.SectionNumber, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CustomPrompt overrides the request defaults.
type CustomPrompt struct {
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Request describes one section to generate.
type Request struct {
	Outline        *notebook.Outline
	SectionNumber  int
	Previous       []*notebook.Section
	ModelReference string
	Difficulty     string
	Custom         *CustomPrompt
}

// Generator produces sections.
type Generator struct {
	provider llm.Provider
	caps     llm.Capabilities
	retry    llm.RetryConfig
	prompts  *prompts.Loader
	review   *review.Sink
	logger   zerolog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetry sets the gateway retry policy.
func WithRetry(cfg llm.RetryConfig) Option { return func(g *Generator) { g.retry = cfg } }

// WithPrompts sets the template loader.
func WithPrompts(l *prompts.Loader) Option { return func(g *Generator) { g.prompts = l } }

// WithReviewSink sets where rejected replies are dumped.
func WithReviewSink(s *review.Sink) Option { return func(g *Generator) { g.review = s } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(g *Generator) { g.logger = l } }

// New creates a Generator around a provider that does not retry on its own.
func New(p llm.Provider, caps llm.Capabilities, opts ...Option) *Generator {
	g := &Generator{
		caps:    caps,
		retry:   llm.DefaultRetryConfig(defaultRetryAttempts),
		prompts: prompts.NewLoader(""),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.provider = llm.WithRetry(p, g.retry, g.logger)
	return g
}

// Generate produces the section for req.SectionNumber. Only a gateway
// failure is returned as an error; unusable replies yield a fallback
// section with Fallback set.
func (g *Generator) Generate(ctx context.Context, req Request) (*notebook.Section, error) {
	if req.SectionNumber < 1 {
		return nil, ErrInvalidSectionNumber
	}
	if strings.TrimSpace(req.ModelReference) == "" {
		return nil, ErrMissingModelReference
	}
	custom := req.Custom
	if custom == nil {
		custom = &CustomPrompt{}
	}

	prompt, err := g.buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build section prompt: %w", err)
	}

	maxTokens := custom.MaxTokens
	if maxTokens <= 0 {
		maxTokens = TokenLimit
	}
	temperature := defaultTemperature
	if custom.Temperature != nil {
		temperature = *custom.Temperature
	}

	llmReq := g.caps.Apply(llm.Request{
		System:      custom.SystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: llm.Float(temperature),
		JSONMode:    true,
	})

	log := g.logger.With().Int("section", req.SectionNumber).Logger()

	resp, err := g.provider.Generate(llm.WithPurpose(ctx, llm.PurposeSection), llmReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error().Err(err).Msg("section request failed")
		return nil, &GenerationError{SectionNumber: req.SectionNumber, Err: err}
	}

	s := g.parse(resp.Content, req, log)
	log.Info().Bool("fallback", s.Fallback).Int("cells", len(s.Content)).Msg("section generated")
	return s, nil
}

func (g *Generator) parse(content string, req Request, log zerolog.Logger) *notebook.Section {
	n := req.SectionNumber
	meta := map[string]string{"section": strconv.Itoa(n)}

	s, err := notebook.ParseSection(content)
	if err != nil {
		reason := "json_extraction_failed"
		if errors.Is(err, notebook.ErrNoJSON) {
			reason = "no_json_object"
		}
		log.Warn().Err(err).Msg("section reply unusable, using fallback")
		g.review.Trace(reviewKind, n, "parse_failed", content)
		g.review.Record(reviewKind, reason, content, meta)
		return Fallback(n, content)
	}

	if !s.HasCellType(notebook.CellMarkdown) || !s.HasCellType(notebook.CellCode) {
		log.Warn().Msg("section reply lacks a markdown or code cell, using fallback")
		g.review.Record(reviewKind, "missing_cells", content, meta)
		return Fallback(n, content)
	}

	if s.SectionNumber != n {
		log.Debug().Int("reported", s.SectionNumber).Msg("section number corrected to outline step")
		s.SectionNumber = n
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = req.Outline.StepTitle(n)
	}
	return s
}

func (g *Generator) buildPrompt(req Request) (string, error) {
	outlineJSON, err := json.MarshalIndent(req.Outline, "", "  ")
	if err != nil {
		return "", err
	}
	previous := req.Previous
	if previous == nil {
		previous = []*notebook.Section{}
	}
	previousJSON, err := json.MarshalIndent(previous, "", "  ")
	if err != nil {
		return "", err
	}

	return g.prompts.Render(prompts.SectionTemplate, map[string]string{
		"MIN_TOKENS":              strconv.Itoa(MinTokens),
		"MAX_TOKENS":              strconv.Itoa(TokenLimit),
		"SECTION_NUMBER":          strconv.Itoa(req.SectionNumber),
		"SECTION_TITLE":           req.Outline.StepTitle(req.SectionNumber),
		"DEFAULT_TOKENS":          strconv.Itoa(min(max(MinTokens+200, 1200), TokenLimit)),
		"OUTLINE_JSON":            string(outlineJSON),
		"PREVIOUS_SECTIONS":       string(previousJSON),
		"MODEL_REFERENCE":         req.ModelReference,
		"MODEL_REFERENCE_OR_TEXT": req.ModelReference,
	})
}

const fallbackCode = `# Minimal runnable example
def greet(name='ALAIN'):
    return f'Hello, {name}!'

print(greet())`

// Fallback builds the stub used when a reply cannot be turned into a
// section. It always has one markdown and one code cell.
func Fallback(n int, raw string) *notebook.Section {
	excerpt := []rune(raw)
	if len(excerpt) > excerptRunes {
		excerpt = excerpt[:excerptRunes]
	}
	return &notebook.Section{
		SectionNumber: n,
		Title:         "Section " + strconv.Itoa(n),
		Content: []notebook.Cell{
			{CellType: notebook.CellMarkdown, Source: notebook.Text(fmt.Sprintf("## Section %d\n\n%s...", n, string(excerpt)))},
			{CellType: notebook.CellCode, Source: notebook.Text(fallbackCode)},
		},
		Callouts:           []notebook.Callout{},
		EstimatedTokens:    FallbackTokens,
		PrerequisitesCheck: []string{},
		NextSectionHint:    "Continue to next section",
		Fallback:           true,
	}
}

// Validate returns advisory issues for a section; an empty result means the
// section is acceptable. A zero token estimate is treated as absent.
func Validate(s *notebook.Section) []string {
	if s == nil || len(s.Content) == 0 {
		return []string{"Section has no content"}
	}

	var issues []string
	if t := s.EstimatedTokens; t != 0 {
		if t > TokenLimit {
			issues = append(issues, fmt.Sprintf("Section exceeds token limit (%d > %d)", t, TokenLimit))
		}
		if t < MinTokens {
			issues = append(issues, fmt.Sprintf("Section below minimum tokens (%d < %d)", t, MinTokens))
		}
	}
	if !s.HasCellType(notebook.CellMarkdown) {
		issues = append(issues, "Section missing explanatory content")
	}
	if !s.HasCellType(notebook.CellCode) {
		issues = append(issues, "Section missing code examples")
	}
	return issues
}

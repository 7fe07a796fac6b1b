// Package outline generates the notebook outline: prompt, parse, validate,
// repair with the teacher model, and fall back to deterministic patching.
package outline

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

const (
	// maxAttempts bounds the outer generation loop.
	maxAttempts = 4
	// parseFailureLimit is the attempt at which an unparseable reply is
	// surfaced instead of retried.
	parseFailureLimit = 2
)

const (
	defaultMaxTokens     = 2000
	defaultTemperature   = 0.1
	defaultRetryAttempts = 5
	repairMaxTokens      = 900

	reviewKindOutline = "outline"
	reviewKindRepair  = "repair"
)

// CustomPrompt overrides parts of the default prompt.
type CustomPrompt struct {
	// Title replaces the subject in the prompt.
	Title string
	// Context is source material for remix scenarios.
	Context      string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Request describes one outline generation.
type Request struct {
	Subject    string
	Difficulty string
	Context    string
	Custom     *CustomPrompt
}

// Generator produces validated outlines.
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

// WithRetry sets the gateway retry policy used for each outer attempt.
func WithRetry(cfg llm.RetryConfig) Option {
	return func(g *Generator) { g.retry = cfg }
}

// WithPrompts sets the template loader.
func WithPrompts(l *prompts.Loader) Option {
	return func(g *Generator) { g.prompts = l }
}

// WithReviewSink sets where rejected replies are dumped.
func WithReviewSink(s *review.Sink) Option {
	return func(g *Generator) { g.review = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator. p should not already retry; the generator wraps
// it with its own gateway budget.
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

// Generate returns an outline that passes Validate and CheckCompleteness.
// It fails with *GenerationError when no parseable reply is obtained and
// with *CompletenessError when the accepted outline is filler.
func (g *Generator) Generate(ctx context.Context, req Request) (*notebook.Outline, error) {
	custom := req.Custom
	if custom == nil {
		custom = &CustomPrompt{}
	}
	subject := strings.TrimSpace(custom.Title)
	if subject == "" {
		subject = strings.TrimSpace(req.Subject)
	}
	if subject == "" {
		return nil, ErrMissingSubject
	}
	source := req.Context
	if source == "" {
		source = custom.Context
	}

	prompt, err := g.buildPrompt(subject, req.Difficulty, source)
	if err != nil {
		return nil, fmt.Errorf("build outline prompt: %w", err)
	}
	system := custom.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	log := g.logger.With().Str("subject", subject).Str("difficulty", req.Difficulty).Logger()
	ctx = llm.WithPurpose(ctx, llm.PurposeOutline)

	var outline *notebook.Outline
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		llmReq := g.attemptRequest(attempt, system, prompt, custom)

		resp, err := g.provider.Generate(ctx, llmReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &GenerationError{Attempts: attempt, Reason: "transport", Err: err}
		}

		o, err := g.parse(resp.Content, reviewKindOutline, attempt)
		if err == nil {
			outline = o
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("outline reply unparseable")
		if attempt >= parseFailureLimit {
			return nil, &GenerationError{Attempts: attempt, Reason: "parse", Err: err}
		}
	}

	v := Validate(outline)
	if !v.Valid() {
		log.Info().Strs("issues", v.Issues).Msg("outline failed validation, requesting repair")
		g.record(reviewKindOutline, "validation_failed", outline, map[string]string{"issues": strings.Join(v.Issues, "; ")})

		repaired, err := g.repair(ctx, system, outline, v.Issues)
		if err != nil {
			log.Warn().Err(err).Msg("outline repair failed, applying deterministic repair")
		} else {
			outline = repaired
		}
		if v = Validate(outline); !v.Valid() {
			outline = RepairDeterministic(outline)
			v = Validate(outline)
		}
	}
	for _, s := range v.Soft {
		log.Warn().Str("issue", s).Msg("outline soft issue")
	}
	renumber(outline)

	if err := CheckCompleteness(outline); err != nil {
		g.review.Trace(reviewKindOutline, 0, "incomplete", err.Error())
		g.record(reviewKindOutline, "completeness_failed", outline, nil)
		return nil, err
	}

	log.Info().Str("title", outline.Title).Int("steps", len(outline.Steps)).Msg("outline generated")
	return outline, nil
}

func (g *Generator) attemptRequest(attempt int, system, prompt string, custom *CustomPrompt) llm.Request {
	maxTokens := custom.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	temperature := 0.0
	user := prompt
	if attempt == 1 {
		temperature = defaultTemperature
		if custom.Temperature != nil {
			temperature = *custom.Temperature
		}
	} else {
		user = prompt + retryInstruction
	}

	return g.caps.Apply(llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: user}},
		MaxTokens:   maxTokens,
		Temperature: llm.Float(temperature),
		JSONMode:    true,
		RequireJSON: true,
	})
}

// repair asks the teacher to fix the listed issues in one round trip.
func (g *Generator) repair(ctx context.Context, system string, o *notebook.Outline, issues []string) (*notebook.Outline, error) {
	current, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode outline for repair: %w", err)
	}

	prompt := "You previously generated a JSON outline for a tutorial. It needs repair to meet constraints.\n" +
		"Return ONLY valid JSON (start with { and end with }). Fix the following issues: " + strings.Join(issues, "; ") + ".\n" +
		fmt.Sprintf("Ensure: %d-%d steps; at least %d MCQs in assessments; %d-%d objectives.\n",
			MinSteps, MaxSteps, MinAssessments, MinObjectives, MaxObjectives) +
		"Here is the current outline JSON to repair:\n" + string(current)

	req := g.caps.Apply(llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
			{Role: llm.RoleUser, Content: repairInstruction},
		},
		MaxTokens:   repairMaxTokens,
		Temperature: llm.Float(0),
		TopP:        llm.Float(1),
		JSONMode:    true,
		RequireJSON: true,
	})

	resp, err := g.provider.Generate(llm.WithPurpose(ctx, llm.PurposeOutlineRepair), req)
	if err != nil {
		return nil, err
	}
	return g.parse(resp.Content, reviewKindRepair, 0)
}

// parse converts a reply into an outline, leaving review artifacts for the
// replies it rejects.
func (g *Generator) parse(content, kind string, attempt int) (*notebook.Outline, error) {
	o, err := notebook.ParseOutline(content)
	if err == nil {
		return o, nil
	}

	meta := map[string]string{"attempt": strconv.Itoa(attempt)}
	if errors.Is(err, notebook.ErrNoJSON) {
		g.review.Record(kind, "no_json_object", content, meta)
	} else {
		g.review.Trace(kind, attempt, "parse_failed", content)
		g.review.Record(kind, "json_extraction_failed", content, meta)
	}
	return nil, err
}

func (g *Generator) record(kind, reason string, o *notebook.Outline, meta map[string]string) {
	if !g.review.Enabled() {
		return
	}
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return
	}
	g.review.Record(kind, reason, string(b), meta)
}

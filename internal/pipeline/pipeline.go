// Package pipeline drives one notebook generation end to end: outline,
// sections, assembly, then the Colab, QA and semantic checks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/colab"
	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
	"github.com/abhisek/alain/internal/outline"
	"github.com/abhisek/alain/internal/qa"
	"github.com/abhisek/alain/internal/section"
	"github.com/abhisek/alain/internal/semantic"
	"github.com/abhisek/alain/internal/store"
)

// OutlineGenerator produces validated outlines.
type OutlineGenerator interface {
	Generate(ctx context.Context, req outline.Request) (*notebook.Outline, error)
}

// SectionGenerator produces one section per call.
type SectionGenerator interface {
	Generate(ctx context.Context, req section.Request) (*notebook.Section, error)
}

// Input is one generation request.
type Input struct {
	Subject    string
	Difficulty string
	// Context is optional source material the outline is shaped around.
	Context string
	// ModelReference is what sections teach about. Defaults to Subject.
	ModelReference string
	// MaxSections caps how many outline steps get a section. 0 means all.
	MaxSections int
	Custom      *outline.CustomPrompt
	// SectionCustom overrides the section request defaults.
	SectionCustom *section.CustomPrompt
	// OutputPath, when set, receives the final notebook.
	OutputPath string
}

// Timings are per-phase wall-clock durations in milliseconds.
type Timings struct {
	OutlineMs  int64   `json:"outline_ms" yaml:"outline_ms"`
	SectionsMs int64   `json:"sections_ms_total" yaml:"sections_ms_total"`
	SectionMs  []int64 `json:"section_ms" yaml:"section_ms"`
	BuildMs    int64   `json:"build_ms" yaml:"build_ms"`
	ColabMs    int64   `json:"colab_ms" yaml:"colab_ms"`
	QAMs       int64   `json:"qa_ms" yaml:"qa_ms"`
	SemanticMs int64   `json:"semantic_ms" yaml:"semantic_ms"`
	TotalMs    int64   `json:"total_ms" yaml:"total_ms"`
}

// Result is everything a run produced.
type Result struct {
	RunID       string              `json:"run_id" yaml:"run_id"`
	Fingerprint string              `json:"fingerprint" yaml:"fingerprint"`
	Outline     *notebook.Outline   `json:"outline" yaml:"-"`
	Sections    []*notebook.Section `json:"sections" yaml:"-"`
	Notebook    *notebook.Notebook  `json:"-" yaml:"-"`
	// Fallbacks lists the section numbers that hold a fallback stub.
	Fallbacks []int `json:"fallback_sections" yaml:"fallback_sections"`
	// Resumed lists the section numbers loaded from checkpoints.
	Resumed  []int            `json:"resumed_sections" yaml:"resumed_sections"`
	Colab    *colab.Result    `json:"colab" yaml:"colab"`
	QA       *qa.Report       `json:"qa" yaml:"qa"`
	Semantic *semantic.Report `json:"semantic" yaml:"semantic"`
	Timings  Timings          `json:"timings" yaml:"timings"`
}

// Publishable reports whether neither the QA gate nor the semantic review
// failed the notebook.
func (r *Result) Publishable() bool {
	if r.QA != nil && r.QA.OverallStatus == qa.Fail {
		return false
	}
	if r.Semantic != nil && r.Semantic.Status == semantic.Fail {
		return false
	}
	return true
}

// Runner executes generation runs.
type Runner struct {
	outlines  OutlineGenerator
	sections  SectionGenerator
	colab     *colab.Validator
	qa        *qa.Evaluator
	semantic  *semantic.Validator
	runs      store.RunRepo
	model     string
	checkDir  string
	coalescer *Coalescer
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithColab sets the Colab validator.
func WithColab(v *colab.Validator) Option { return func(r *Runner) { r.colab = v } }

// WithQA sets the QA gate.
func WithQA(e *qa.Evaluator) Option { return func(r *Runner) { r.qa = e } }

// WithSemantic enables the semantic review.
func WithSemantic(v *semantic.Validator) Option { return func(r *Runner) { r.semantic = v } }

// WithRunRepo records every run. model is stored with it.
func WithRunRepo(repo store.RunRepo, model string) Option {
	return func(r *Runner) {
		r.runs = repo
		r.model = model
	}
}

// WithCheckpointDir enables section checkpoints under dir.
func WithCheckpointDir(dir string) Option { return func(r *Runner) { r.checkDir = dir } }

// WithCoalescer shares identical in-flight and recent runs.
func WithCoalescer(c *Coalescer) Option { return func(r *Runner) { r.coalescer = c } }

// WithClock sets the clock used for timings.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.logger = l } }

// New creates a Runner. The Colab validator and QA gate default to their
// zero-configuration forms; semantic review is off unless configured.
func New(outlines OutlineGenerator, sections SectionGenerator, opts ...Option) *Runner {
	r := &Runner{
		outlines: outlines,
		sections: sections,
		colab:    colab.New(),
		qa:       qa.New(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run generates a notebook for in. Only an outline failure, a non-transport
// section error or cancellation abort the run, and then the partial result
// is returned with the error. Sections whose transport gave up are replaced
// by fallback stubs.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	key := Fingerprint(in)
	if r.coalescer == nil {
		return r.run(ctx, in, key)
	}
	res, shared, err := r.coalescer.Do(ctx, key, func(ctx context.Context) (*Result, error) {
		return r.run(ctx, in, key)
	})
	if shared && err == nil {
		r.logger.Info().Str("run_id", res.RunID).Str("fingerprint", key).Msg("reusing coalesced run")
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, in Input, key string) (res *Result, err error) {
	if in.ModelReference == "" {
		in.ModelReference = in.Subject
	}
	if in.ModelReference == "" && in.Custom != nil {
		in.ModelReference = in.Custom.Title
	}

	runID := uuid.New().String()
	ctx = llm.WithRunID(ctx, runID)
	log := r.logger.With().Str("run_id", runID).Logger()
	start := r.now()

	res = &Result{RunID: runID, Fingerprint: key}
	r.startRun(ctx, res, in)
	defer func() {
		res.Timings.TotalMs = r.since(start)
		r.finishRun(ctx, res, in, err)
		if err != nil {
			log.Error().Err(err).Msg("generation run failed")
		}
	}()

	t := r.now()
	o, err := r.outlines.Generate(ctx, outline.Request{
		Subject:    in.Subject,
		Difficulty: in.Difficulty,
		Context:    in.Context,
		Custom:     in.Custom,
	})
	res.Timings.OutlineMs = r.since(t)
	if err != nil {
		return res, fmt.Errorf("generate outline: %w", err)
	}
	res.Outline = o
	log.Info().Str("title", o.Title).Int("steps", len(o.Steps)).Msg("outline ready")

	t = r.now()
	if err := r.generateSections(ctx, res, in, key, log); err != nil {
		return res, err
	}
	res.Timings.SectionsMs = r.since(t)

	t = r.now()
	nb := notebook.Build(o, res.Sections)
	res.Timings.BuildMs = r.since(t)

	t = r.now()
	res.Colab = r.colab.Validate(ctx, nb)
	if res.Colab.Fixed != nil {
		nb = res.Colab.Fixed
	}
	res.Timings.ColabMs = r.since(t)
	res.Notebook = nb

	t = r.now()
	res.QA = r.qa.Evaluate(o, res.Sections)
	res.Timings.QAMs = r.since(t)

	if r.semantic != nil {
		t = r.now()
		res.Semantic = r.semantic.Evaluate(ctx, semantic.Input{Outline: o, Sections: res.Sections, Notebook: nb})
		res.Timings.SemanticMs = r.since(t)
	}

	if in.OutputPath != "" {
		if err := nb.Save(in.OutputPath); err != nil {
			return res, fmt.Errorf("save notebook: %w", err)
		}
	}

	log.Info().
		Int("sections", len(res.Sections)).
		Ints("fallbacks", res.Fallbacks).
		Bool("colab_compatible", res.Colab.Compatible).
		Str("qa_status", string(res.QA.OverallStatus)).
		Int64("total_ms", r.since(start)).
		Msg("generation run complete")
	return res, nil
}

func (r *Runner) generateSections(ctx context.Context, res *Result, in Input, key string, log zerolog.Logger) error {
	count := len(res.Outline.Steps)
	if in.MaxSections > 0 && in.MaxSections < count {
		count = in.MaxSections
	}
	cp := newCheckpoints(r.checkDir, key)

	res.Sections = make([]*notebook.Section, 0, count)
	res.Timings.SectionMs = make([]int64, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		saved, err := cp.load(n)
		if err != nil {
			log.Warn().Err(err).Int("section", n).Msg("ignoring unreadable checkpoint")
		}
		if saved != nil {
			saved.SectionNumber = n
			res.Sections = append(res.Sections, saved)
			res.Resumed = append(res.Resumed, n)
			res.Timings.SectionMs = append(res.Timings.SectionMs, 0)
			continue
		}

		t := r.now()
		s, err := r.sections.Generate(ctx, section.Request{
			Outline:        res.Outline,
			SectionNumber:  n,
			Previous:       res.Sections,
			ModelReference: in.ModelReference,
			Difficulty:     in.Difficulty,
			Custom:         in.SectionCustom,
		})
		res.Timings.SectionMs = append(res.Timings.SectionMs, r.since(t))

		var genErr *section.GenerationError
		switch {
		case err == nil:
		case errors.As(err, &genErr) && ctx.Err() == nil:
			log.Warn().Err(err).Int("section", n).Msg("section transport exhausted, using fallback")
			s = section.Fallback(n, res.Outline.StepTitle(n))
			s.Title = res.Outline.StepTitle(n)
		default:
			return fmt.Errorf("generate section %d: %w", n, err)
		}

		s.SectionNumber = n
		if s.Fallback {
			res.Fallbacks = append(res.Fallbacks, n)
		} else {
			for _, issue := range section.Validate(s) {
				log.Warn().Int("section", n).Str("issue", issue).Msg("section quality issue")
			}
			if err := cp.save(n, s); err != nil {
				log.Warn().Err(err).Int("section", n).Msg("failed to write checkpoint")
			}
		}
		res.Sections = append(res.Sections, s)
	}
	return nil
}

func (r *Runner) since(t time.Time) int64 {
	return r.now().Sub(t).Milliseconds()
}

func (r *Runner) startRun(ctx context.Context, res *Result, in Input) {
	if r.runs == nil {
		return
	}
	err := r.runs.StartRun(context.WithoutCancel(ctx), store.Run{
		ID:          res.RunID,
		Fingerprint: res.Fingerprint,
		Subject:     in.Subject,
		Model:       r.model,
		Difficulty:  in.Difficulty,
		StartedAt:   r.now(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to record run start")
	}
}

func (r *Runner) finishRun(ctx context.Context, res *Result, in Input, runErr error) {
	if r.runs == nil {
		return
	}
	run := store.Run{
		ID:               res.RunID,
		Status:           store.RunSucceeded,
		Sections:         len(res.Sections),
		FallbackSections: len(res.Fallbacks),
		FinishedAt:       r.now(),
	}
	if res.Outline != nil {
		run.OutlineTitle = res.Outline.Title
	}
	if res.Colab != nil {
		run.ColabCompatible = res.Colab.Compatible
	}
	if res.QA != nil {
		run.QAStatus = string(res.QA.OverallStatus)
	}
	if res.Semantic != nil {
		run.SemanticStatus = string(res.Semantic.Status)
	}
	if runErr != nil {
		run.Status = store.RunFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.OutputPath = in.OutputPath
	}
	if err := r.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record run outcome")
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/alain/internal/colab"
	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/logging"
	"github.com/abhisek/alain/internal/outline"
	"github.com/abhisek/alain/internal/pipeline"
	"github.com/abhisek/alain/internal/prompts"
	"github.com/abhisek/alain/internal/qa"
	"github.com/abhisek/alain/internal/review"
	"github.com/abhisek/alain/internal/section"
	"github.com/abhisek/alain/internal/semantic"
	"github.com/abhisek/alain/internal/store"
)

// deps holds everything a generation command needs.
type deps struct {
	store    *store.Store
	events   store.EventRepo
	provider llm.Provider
	caps     llm.Capabilities
	outlines *outline.Generator
	sections *section.Generator
}

func (d *deps) Close() {
	if d.store != nil {
		d.store.Close()
	}
}

// buildDeps opens the event store (unless disabled) and wires the teacher
// provider into both generators.
func buildDeps(ctx context.Context, cmd *cobra.Command) (*deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &deps{}
	if !cfg.Store.Disabled {
		s, err := openStore(cmd)
		if err != nil {
			return nil, err
		}
		d.store = s
		d.events = s.EventRepo()
	}

	llmCfg := cfg.LLM()
	p, err := llm.NewProvider(ctx, llmCfg, d.events, logging.Component(logger, "llm"))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("LLM provider: %w", err)
	}
	d.provider = p
	d.caps = llmCfg.Capabilities()

	loader := prompts.NewLoader(cfg.Prompts.Root)
	sink := review.New(cfg.Review.Dir, cfg.Review.Scenario, review.WithLogger(logger))

	d.outlines = outline.New(p, d.caps,
		outline.WithRetry(cfg.OutlineRetry()),
		outline.WithPrompts(loader),
		outline.WithReviewSink(sink),
		outline.WithLogger(logging.Component(logger, "outline")),
	)
	d.sections = section.New(p, d.caps,
		section.WithRetry(cfg.SectionRetry()),
		section.WithPrompts(loader),
		section.WithReviewSink(sink),
		section.WithLogger(logging.Component(logger, "section")),
	)
	return d, nil
}

// colabValidator builds the Colab validator. Model review is enabled when
// colab.model is configured.
func colabValidator(ctx context.Context, events store.EventRepo) *colab.Validator {
	opts := []colab.Option{
		colab.WithTolerance(cfg.Colab.MaxIssues),
		colab.WithLogger(logging.Component(logger, "colab")),
	}
	if cfg.Colab.Model != "" {
		rc := llm.Config{
			Provider:            "openai",
			BaseURL:             llm.NormalizeBaseURL(cfg.Colab.BaseURL),
			APIKey:              cfg.Colab.APIKey,
			Model:               cfg.Colab.Model,
			NoTemperatureModels: cfg.Teacher.NoTemperatureModels,
			Timeout:             cfg.Teacher.Timeout,
		}
		p, err := llm.NewProvider(ctx, rc, events, logging.Component(logger, "llm"))
		if err != nil {
			logger.Warn().Err(err).Msg("colab model review disabled")
		} else {
			reviewer := llm.WithRetry(p, llm.DefaultRetryConfig(2), logger)
			opts = append(opts, colab.WithReviewer(reviewer, rc.Capabilities()))
		}
	}
	return colab.New(opts...)
}

// semanticValidator returns nil when semantic QA is turned off.
func semanticValidator(events store.EventRepo) *semantic.Validator {
	if !cfg.QA.Semantic {
		return nil
	}
	return semantic.New(semantic.Endpoint{
		BaseURL: cfg.QA.BaseURL,
		APIKey:  cfg.QA.APIKey,
		Model:   cfg.QA.Model,
		Timeout: cfg.Teacher.Timeout,
	},
		semantic.WithEventRepo(events),
		semantic.WithNoTemperatureModels(llm.ParseModelRules(cfg.Teacher.NoTemperatureModels)),
		semantic.WithLogger(logging.Component(logger, "semantic")),
	)
}

// newRunner assembles the pipeline around d.
func newRunner(ctx context.Context, d *deps) *pipeline.Runner {
	opts := []pipeline.Option{
		pipeline.WithColab(colabValidator(ctx, d.events)),
		pipeline.WithQA(qa.New(qa.WithLogger(logging.Component(logger, "qa")))),
		pipeline.WithCheckpointDir(cfg.Checkpoint.Dir),
		pipeline.WithCoalescer(pipeline.NewCoalescer(cfg.Pipeline.CoalesceTTL)),
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
	}
	if sv := semanticValidator(d.events); sv != nil {
		opts = append(opts, pipeline.WithSemantic(sv))
	}
	if d.store != nil {
		opts = append(opts, pipeline.WithRunRepo(d.store.RunRepo(), d.provider.ModelID()))
	}
	return pipeline.New(d.outlines, d.sections, opts...)
}

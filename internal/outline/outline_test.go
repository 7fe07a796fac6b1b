package outline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
	"github.com/abhisek/alain/internal/review"
)

var openAICaps = llm.ResolveCapabilities(llm.ProviderOpenAICompatible, "http://localhost:8000", "llama3", nil)

func fastRetry(attempts int) Option {
	return WithRetry(llm.RetryConfig{MaxAttempts: attempts})
}

func validOutline(steps, assessments int) *notebook.Outline {
	o := &notebook.Outline{
		Title:         "Getting Started with LoRA Fine-tuning",
		Overview:      strings.Repeat("This notebook walks through adapting a language model with low-rank adapters. ", 2),
		Objectives:    []string{"Explain LoRA", "Configure adapters", "Train and evaluate"},
		Prerequisites: []string{"Python"},
		Setup:         notebook.Setup{Requirements: []string{"peft"}},
		Summary:       strings.Repeat("You configured adapters, trained them, and compared the results with the base model. ", 2),
		NextSteps:     "Try QLoRA on a larger model.",
		References:    []string{"https://arxiv.org/abs/2106.09685", "https://huggingface.co/docs/peft"},

		EstimatedTotalTokens: 3000,
	}
	for i := 1; i <= steps; i++ {
		o.Steps = append(o.Steps, notebook.OutlineStep{Step: i, Title: fmt.Sprintf("Step %d", i), Type: "concept", EstimatedTokens: 300, ContentType: "markdown + code"})
	}
	for i := 1; i <= assessments; i++ {
		o.Assessments = append(o.Assessments, notebook.Assessment{Question: fmt.Sprintf("Q%d", i), Options: []string{"a", "b", "c", "d"}, Explanation: "because"})
	}
	return o
}

func reply(t *testing.T, o *notebook.Outline) llm.MockResponse {
	t.Helper()
	b, err := json.Marshal(o)
	require.NoError(t, err)
	return llm.MockResponse{Content: string(b)}
}

func TestGenerate_Valid(t *testing.T) {
	mock := llm.NewMockProvider(reply(t, validOutline(6, 4)))
	g := New(mock, openAICaps, fastRetry(5))

	o, err := g.Generate(context.Background(), Request{Subject: "LoRA", Difficulty: Beginner})
	require.NoError(t, err)
	assert.Equal(t, "Getting Started with LoRA Fine-tuning", o.Title)
	assert.Len(t, o.Steps, 6)

	require.Equal(t, 1, mock.CallCount())
	req := mock.LastRequest()
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.1, *req.Temperature)
	assert.True(t, req.JSONMode)
	assert.True(t, req.RequireJSON)
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Equal(t, defaultSystemPrompt, req.System)
	assert.Contains(t, req.Messages[0].Content, "LoRA")
	assert.Contains(t, req.Messages[0].Content, AudienceDescription(Beginner))
}

func TestGenerate_PoeCapabilities(t *testing.T) {
	caps := llm.ResolveCapabilities("", "https://api.poe.com", "gpt-5-mini", llm.ParseModelRules(llm.DefaultNoTemperatureModels))
	mock := llm.NewMockProvider(reply(t, validOutline(6, 4)))

	_, err := New(mock, caps, fastRetry(5)).Generate(context.Background(), Request{Subject: "LoRA"})
	require.NoError(t, err)

	req := mock.LastRequest()
	assert.False(t, req.JSONMode)
	assert.Nil(t, req.Temperature)
	assert.True(t, req.RequireJSON)
}

func TestGenerate_CustomPrompt(t *testing.T) {
	mock := llm.NewMockProvider(reply(t, validOutline(6, 4)))
	g := New(mock, openAICaps, fastRetry(5))

	_, err := g.Generate(context.Background(), Request{
		Subject: "ignored",
		Custom: &CustomPrompt{
			Title:        "Remix: Diffusion Basics",
			Context:      "## Heading from source notebook",
			SystemPrompt: "custom system",
			Temperature:  llm.Float(0.7),
			MaxTokens:    1234,
		},
	})
	require.NoError(t, err)

	req := mock.LastRequest()
	assert.Equal(t, "custom system", req.System)
	assert.Equal(t, 0.7, *req.Temperature)
	assert.Equal(t, 1234, req.MaxTokens)
	assert.Contains(t, req.Messages[0].Content, "Remix: Diffusion Basics")
	assert.NotContains(t, req.Messages[0].Content, "ignored")
	assert.Contains(t, req.Messages[0].Content, "SOURCE CONTEXT")
	assert.Contains(t, req.Messages[0].Content, "## Heading from source notebook")
}

func TestGenerate_MissingSubject(t *testing.T) {
	_, err := New(llm.NewMockProvider(), openAICaps).Generate(context.Background(), Request{Subject: "  "})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestGenerate_ParseFailuresSurfaceAtSecondAttempt(t *testing.T) {
	bad := llm.MockResponse{Content: `{"title": 42}`}
	mock := llm.NewMockProvider(bad, bad, bad, bad)
	g := New(mock, openAICaps, fastRetry(5))

	_, err := g.Generate(context.Background(), Request{Subject: "LoRA"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "parse", genErr.Reason)
	assert.Equal(t, 2, genErr.Attempts)
	assert.ErrorIs(t, err, notebook.ErrMalformed)
	assert.Equal(t, 2, mock.CallCount())

	second := mock.Calls[1]
	assert.Equal(t, 0.0, *second.Temperature)
	assert.Contains(t, second.Messages[0].Content, "Your previous reply was not valid JSON")
}

func TestGenerate_RecoversOnSecondAttempt(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `{"outline": "nope"}`}, reply(t, validOutline(7, 4)))
	o, err := New(mock, openAICaps, fastRetry(5)).Generate(context.Background(), Request{Subject: "LoRA"})
	require.NoError(t, err)
	assert.Len(t, o.Steps, 7)
	assert.Equal(t, 2, mock.CallCount())
}

func TestGenerate_TransportExhausted(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: "no json here"},
		llm.MockResponse{Content: ""},
		llm.MockResponse{Err: &llm.ErrProviderUnavailable{StatusCode: 502}},
	)
	_, err := New(mock, openAICaps, fastRetry(3)).Generate(context.Background(), Request{Subject: "LoRA"})

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "transport", genErr.Reason)
	var exhausted *llm.ErrTransportExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, mock.CallCount())
}

func TestGenerate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(llm.NewMockProvider(), openAICaps, fastRetry(5)).Generate(ctx, Request{Subject: "LoRA"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_RepairedByModel(t *testing.T) {
	mock := llm.NewMockProvider(reply(t, validOutline(6, 2)), reply(t, validOutline(8, 5)))
	o, err := New(mock, openAICaps, fastRetry(5)).Generate(context.Background(), Request{Subject: "LoRA"})
	require.NoError(t, err)
	assert.Len(t, o.Steps, 8)
	assert.Len(t, o.Assessments, 5)

	require.Equal(t, 2, mock.CallCount())
	repair := mock.Calls[1]
	assert.Equal(t, repairMaxTokens, repair.MaxTokens)
	assert.Equal(t, 0.0, *repair.Temperature)
	require.NotNil(t, repair.TopP)
	assert.Equal(t, 1.0, *repair.TopP)
	require.Len(t, repair.Messages, 2)
	assert.Contains(t, repair.Messages[0].Content, "Must have at least 4 assessment questions")
	assert.Equal(t, repairInstruction, repair.Messages[1].Content)
}

// A five step outline whose repair also comes back short is padded to six.
func TestGenerate_DeterministicRepairPadsSteps(t *testing.T) {
	mock := llm.NewMockProvider(reply(t, validOutline(5, 4)), reply(t, validOutline(5, 4)))
	o, err := New(mock, openAICaps, fastRetry(5)).Generate(context.Background(), Request{Subject: "LoRA"})
	require.NoError(t, err)

	require.Len(t, o.Steps, 6)
	assert.Equal(t, "Step 6: Additional Content", o.Steps[5].Title)
	assert.Equal(t, 6, o.Steps[5].Step)
}

func TestGenerate_RepairTransportFailureFallsBack(t *testing.T) {
	mock := llm.NewMockProvider(reply(t, validOutline(6, 2)), llm.MockResponse{Err: errors.New("boom")})
	o, err := New(mock, openAICaps, fastRetry(1)).Generate(context.Background(), Request{Subject: "LoRA"})
	require.NoError(t, err)
	require.Len(t, o.Assessments, 4)
	assert.Equal(t, "Quick check 3: Basic understanding", o.Assessments[2].Question)
}

func TestGenerate_Incomplete(t *testing.T) {
	short := validOutline(6, 4)
	short.Overview = "Too short."

	dir := t.TempDir()
	sink := review.New(dir, "incomplete-case")
	mock := llm.NewMockProvider(reply(t, short))

	_, err := New(mock, openAICaps, fastRetry(5), WithReviewSink(sink)).Generate(context.Background(), Request{Subject: "LoRA"})
	var ce *CompletenessError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Problems, "Overview is too short or missing")

	entries, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, review.TraceFile)
	found := false
	for _, n := range names {
		if strings.HasPrefix(n, "outline-completeness_failed-") {
			found = true
		}
	}
	assert.True(t, found, "artifact files: %v", names)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *notebook.Outline)
		issues []string
		soft   []string
	}{
		{"valid", func(*notebook.Outline) {}, nil, nil},
		{"five steps", func(o *notebook.Outline) { o.Steps = o.Steps[:5] }, []string{"Must have at least 6 steps"}, nil},
		{"two assessments", func(o *notebook.Outline) { o.Assessments = o.Assessments[:2] }, []string{"Must have at least 4 assessment questions"}, nil},
		{"missing title", func(o *notebook.Outline) { o.Title = " " }, []string{"Missing title"}, nil},
		{"six objectives", func(o *notebook.Outline) { o.Objectives = []string{"a", "b", "c", "d", "e", "f"} }, []string{"Must have 3–5 learning objectives"}, nil},
		{"sixteen steps", func(o *notebook.Outline) { *o = *validOutline(16, 4) }, []string{"Should not exceed 15 steps"}, nil},
		{"tokens high", func(o *notebook.Outline) { o.EstimatedTotalTokens = 5000 }, nil, []string{"Token count exceeds recommended range - consider splitting"}},
		{"tokens low", func(o *notebook.Outline) { o.EstimatedTotalTokens = 900 }, nil, []string{"Token count below recommended range - consider adding depth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOutline(6, 4)
			tt.mutate(o)
			v := Validate(o)
			assert.Equal(t, tt.issues, v.Issues)
			assert.Equal(t, tt.soft, v.Soft)
			assert.Equal(t, len(tt.issues) == 0, v.Valid())
		})
	}
}

func TestRepairDeterministic(t *testing.T) {
	t.Run("pads assessments", func(t *testing.T) {
		in := validOutline(6, 2)
		out := RepairDeterministic(in)
		require.Len(t, out.Assessments, 4)
		assert.Equal(t, "Quick check 3: Basic understanding", out.Assessments[2].Question)
		assert.Equal(t, "Quick check 4: Basic understanding", out.Assessments[3].Question)
		assert.Equal(t, []string{"A", "B", "C", "D"}, out.Assessments[3].Options)
		assert.Len(t, in.Assessments, 2, "input must not change")
		assert.True(t, Validate(out).Valid())
	})

	t.Run("empty outline", func(t *testing.T) {
		out := RepairDeterministic(&notebook.Outline{})
		assert.True(t, Validate(out).Valid(), "%v", Validate(out).Issues)
		assert.Equal(t, fallbackTitle, out.Title)
		assert.Equal(t, fallbackObjectives, out.Objectives)
		assert.Len(t, out.References, 2)
		for i, s := range out.Steps {
			assert.Equal(t, i+1, s.Step)
		}
	})

	t.Run("truncates", func(t *testing.T) {
		in := validOutline(18, 4)
		in.Objectives = []string{"1", "2", "3", "4", "5", "6", "7"}
		out := RepairDeterministic(in)
		assert.Len(t, out.Steps, MaxSteps)
		assert.Len(t, out.Objectives, MaxObjectives)
	})

	t.Run("nil", func(t *testing.T) {
		assert.True(t, Validate(RepairDeterministic(nil)).Valid())
	})
}

func TestCheckCompleteness(t *testing.T) {
	assert.NoError(t, CheckCompleteness(validOutline(6, 4)))

	o := validOutline(6, 4)
	o.Summary = strings.Repeat("A summary that trails off into nothing useful for a learner at all ", 2) + "..."
	o.Overview = strings.Repeat("x", 130) + " (excerpt intentionally truncated)"
	o.References = o.References[:1]

	err := CheckCompleteness(o)
	var ce *CompletenessError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Problems, "Summary ends with a truncation ellipsis")
	assert.Contains(t, ce.Problems, "Overview contains placeholder language ((?i)excerpt intentionally truncated)")
	assert.Contains(t, ce.Problems, "At least two references are required")
	assert.Contains(t, ce.Problems, "Outline contains placeholder artifact ((?i)excerpt intentionally truncated)")
	assert.True(t, strings.HasPrefix(err.Error(), "outline completeness check failed: "))

	// Deterministic repair cannot make filler complete.
	assert.Error(t, CheckCompleteness(RepairDeterministic(&notebook.Outline{})))
}

package section

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
)

var caps = llm.ResolveCapabilities(llm.ProviderOpenAICompatible, "http://127.0.0.1:8080", "qwen2.5", nil)

func testOutline() *notebook.Outline {
	return &notebook.Outline{
		Title: "LoRA",
		Steps: []notebook.OutlineStep{
			{Step: 1, Title: "Step 1: Setup"},
			{Step: 2, Title: "Step 2: Adapters"},
		},
	}
}

const goodSection = `{"section_number": 2, "title": "Adapters", "content": [
  {"cell_type": "markdown", "source": "## Adapters\nLow-rank matrices."},
  {"cell_type": "code", "source": "print('adapters')"}
], "callouts": [], "estimated_tokens": 850, "prerequisites_check": [], "next_section_hint": "Training"}`

func newGen(mock *llm.MockProvider) *Generator {
	return New(mock, caps, WithRetry(llm.RetryConfig{MaxAttempts: 4}))
}

func TestGenerate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: goodSection})
	prev := []*notebook.Section{Fallback(1, "earlier")}

	s, err := newGen(mock).Generate(context.Background(), Request{
		Outline: testOutline(), SectionNumber: 2, Previous: prev, ModelReference: "qwen2.5",
	})
	require.NoError(t, err)
	assert.False(t, s.Fallback)
	assert.Equal(t, "Adapters", s.Title)
	assert.Empty(t, Validate(s))

	req := mock.LastRequest()
	assert.Equal(t, TokenLimit, req.MaxTokens)
	assert.Equal(t, defaultTemperature, *req.Temperature)
	assert.True(t, req.JSONMode)
	assert.False(t, req.RequireJSON)

	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, `"Step 2: Adapters"`)
	assert.Contains(t, prompt, "between 800 and 1000 tokens")
	assert.Contains(t, prompt, "about 1000")
	assert.Contains(t, prompt, `"next_section_hint": "Continue to next section"`)
}

// A reply with an unterminated object degrades to the stub.
func TestGenerate_UnbalancedReplyFallsBack(t *testing.T) {
	raw := "Sure, here is the section: {incomplete json..."
	mock := llm.NewMockProvider(llm.MockResponse{Content: raw})

	s, err := newGen(mock).Generate(context.Background(), Request{
		Outline: testOutline(), SectionNumber: 3, ModelReference: "qwen2.5",
	})
	require.NoError(t, err)
	assert.True(t, s.Fallback)
	assert.Equal(t, FallbackTokens, s.EstimatedTokens)
	require.Len(t, s.Content, 2)
	assert.Equal(t, notebook.CellMarkdown, s.Content[0].CellType)
	assert.Equal(t, notebook.CellCode, s.Content[1].CellType)
	assert.True(t, strings.HasPrefix(string(s.Content[0].Source), "## Section 3\n\nSure, here is the section"))
	assert.Empty(t, Validate(s))
	assert.Equal(t, 1, mock.CallCount(), "malformed sections are not retried")
}

func TestGenerate_MissingCodeCellFallsBack(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `{"content": [{"cell_type": "markdown", "source": "only prose"}]}`})
	s, err := newGen(mock).Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 1, ModelReference: "m"})
	require.NoError(t, err)
	assert.True(t, s.Fallback)
}

func TestGenerate_FillsNumberAndTitle(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: `{"content": [
	  {"cell_type": "markdown", "source": "text"}, {"cell_type": "code", "source": "x = 1"}]}`})
	s, err := newGen(mock).Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 1, ModelReference: "m"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.SectionNumber)
	assert.Equal(t, "Step 1: Setup", s.Title)
}

func TestGenerate_SectionNumberFollowsOutlineStep(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: goodSection})
	s, err := newGen(mock).Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 1, ModelReference: "m"})
	require.NoError(t, err)
	assert.False(t, s.Fallback)
	assert.Equal(t, 1, s.SectionNumber, "reply claimed section 2")
}

func TestGenerate_EmptyContentRetried(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: "  "}, llm.MockResponse{Content: goodSection})
	s, err := newGen(mock).Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 2, ModelReference: "m"})
	require.NoError(t, err)
	assert.False(t, s.Fallback)
	assert.Equal(t, 2, mock.CallCount())
}

func TestGenerate_TransportExhausted(t *testing.T) {
	fail := llm.MockResponse{Err: &llm.ErrProviderUnavailable{StatusCode: 500, Err: errors.New("down")}}
	mock := llm.NewMockProvider(fail, fail, fail, fail)

	_, err := newGen(mock).Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 1, ModelReference: "m"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.SectionNumber)
	var exhausted *llm.ErrTransportExhausted
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, mock.CallCount())
}

func TestGenerate_Arguments(t *testing.T) {
	g := newGen(llm.NewMockProvider())
	_, err := g.Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 0, ModelReference: "m"})
	assert.ErrorIs(t, err, ErrInvalidSectionNumber)
	_, err = g.Generate(context.Background(), Request{Outline: testOutline(), SectionNumber: 1})
	assert.ErrorIs(t, err, ErrMissingModelReference)
}

func TestGenerate_Custom(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: goodSection})
	noTemp := llm.ResolveCapabilities("", "https://api.poe.com", "o3-mini", llm.ParseModelRules("o3*"))
	g := New(mock, noTemp, WithRetry(llm.RetryConfig{MaxAttempts: 1}))

	_, err := g.Generate(context.Background(), Request{
		Outline: testOutline(), SectionNumber: 2, ModelReference: "o3-mini",
		Custom: &CustomPrompt{SystemPrompt: "sys", Temperature: llm.Float(0.9), MaxTokens: 700},
	})
	require.NoError(t, err)
	req := mock.LastRequest()
	assert.Equal(t, "sys", req.System)
	assert.Equal(t, 700, req.MaxTokens)
	assert.Nil(t, req.Temperature)
	assert.False(t, req.JSONMode)
}

func TestValidate(t *testing.T) {
	md := notebook.Cell{CellType: notebook.CellMarkdown, Source: "x"}
	code := notebook.Cell{CellType: notebook.CellCode, Source: "y"}

	tests := []struct {
		name   string
		s      *notebook.Section
		issues []string
	}{
		{"nil", nil, []string{"Section has no content"}},
		{"empty", &notebook.Section{}, []string{"Section has no content"}},
		{"ok", &notebook.Section{Content: []notebook.Cell{md, code}, EstimatedTokens: 900}, nil},
		{"no estimate", &notebook.Section{Content: []notebook.Cell{md, code}}, nil},
		{"too long", &notebook.Section{Content: []notebook.Cell{md, code}, EstimatedTokens: 1200}, []string{"Section exceeds token limit (1200 > 1000)"}},
		{"too short", &notebook.Section{Content: []notebook.Cell{md, code}, EstimatedTokens: 300}, []string{"Section below minimum tokens (300 < 800)"}},
		{"no markdown", &notebook.Section{Content: []notebook.Cell{code}}, []string{"Section missing explanatory content"}},
		{"no code", &notebook.Section{Content: []notebook.Cell{md}}, []string{"Section missing code examples"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.issues, Validate(tt.s))
		})
	}
}

func TestFallbackExcerpt(t *testing.T) {
	s := Fallback(4, strings.Repeat("é", 600))
	md := string(s.Content[0].Source)
	assert.Equal(t, "## Section 4\n\n"+strings.Repeat("é", 500)+"...", md)
	assert.Equal(t, "Section 4", s.Title)
}

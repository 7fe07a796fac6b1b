package llm

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.5-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-2.0-flash-lite", "gemini-2.0-flash-lite"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, resolveModel(tt.input, geminiModels), tt.input)
	}
}

func TestBuildGeminiConfig_OutlineRequest(t *testing.T) {
	caps := ResolveCapabilities(ProviderGemini, "", "gemini-2.5-flash", nil)
	cfg := buildGeminiConfig(caps.Apply(Request{
		System:      "You are ALAIN-Teacher.",
		MaxTokens:   2000,
		Temperature: Float(0.1),
		TopP:        Float(1),
		JSONMode:    true,
	}))

	assert.Equal(t, int32(2000), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.1, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.TopP)
	assert.Equal(t, float32(1), *cfg.TopP)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Nil(t, cfg.ResponseSchema)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "You are ALAIN-Teacher.", cfg.SystemInstruction.Parts[0].Text)
}

func TestBuildGeminiConfig_UnsetFieldsStayOff(t *testing.T) {
	cfg := buildGeminiConfig(Request{MaxTokens: 400})

	assert.Nil(t, cfg.Temperature)
	assert.Nil(t, cfg.TopP)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Empty(t, cfg.ResponseMIMEType)
}

func TestBuildGeminiConfig_ZeroTemperatureIsSent(t *testing.T) {
	cfg := buildGeminiConfig(Request{Temperature: Float(0)})

	require.NotNil(t, cfg.Temperature)
	assert.Zero(t, *cfg.Temperature)
}

func TestBuildGeminiConfig_Schema(t *testing.T) {
	cfg := buildGeminiConfig(Request{Schema: &Schema{Name: "report", Definition: map[string]any{
		"type":       "object",
		"properties": map[string]any{"status": map[string]any{"type": "string"}},
	}}})

	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.ResponseSchema)
	assert.Equal(t, genai.TypeObject, cfg.ResponseSchema.Type)
}

func TestBuildGeminiContents_Roles(t *testing.T) {
	contents := buildGeminiContents([]Message{
		{Role: RoleUser, Content: "outline please"},
		{Role: RoleAssistant, Content: "{}"},
		{Role: RoleUser, Content: "repair it"},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "repair it", contents[2].Parts[0].Text)
}

func TestMapGeminiError(t *testing.T) {
	var rl *ErrRateLimit
	assert.ErrorAs(t, mapGeminiError(genai.APIError{Code: http.StatusTooManyRequests}), &rl)

	var unavailable *ErrProviderUnavailable
	require.ErrorAs(t, mapGeminiError(genai.APIError{Code: http.StatusServiceUnavailable}), &unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, unavailable.StatusCode)

	require.ErrorAs(t, mapGeminiError(errors.New("dial tcp: refused")), &unavailable)
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":          map[string]any{"type": "string", "enum": []any{"pass", "warn", "fail"}},
			"issues":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"filler_sections": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
		"required": []any{"status", "issues"},
	}

	schema := buildGeminiSchema(def)

	assert.Equal(t, genai.TypeObject, schema.Type)
	require.Len(t, schema.Properties, 3)
	assert.Equal(t, genai.TypeString, schema.Properties["status"].Type)
	assert.Len(t, schema.Properties["status"].Enum, 3)
	assert.Equal(t, genai.TypeArray, schema.Properties["issues"].Type)
	assert.Equal(t, genai.TypeInteger, schema.Properties["filler_sections"].Items.Type)
	assert.Equal(t, []string{"status", "issues"}, schema.Required)
}

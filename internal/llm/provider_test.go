package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMockProvider_ReturnsCannedResponses(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: `{"a":1}`, Usage: Usage{InputTokens: 3}},
		MockResponse{Content: `{"a":2}`},
	)

	for _, want := range []string{`{"a":1}`, `{"a":2}`} {
		resp, err := mock.Generate(context.Background(), Request{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != want {
			t.Fatalf("expected %s, got %s", want, resp.Content)
		}
	}
}

func TestMockProvider_EmptyQueueReturnsError(t *testing.T) {
	mock := NewMockProvider()
	_, err := mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %v", err)
	}
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: "ok"})
	mock.Generate(context.Background(), Request{System: "sys", MaxTokens: 400})

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
	if got := mock.LastRequest(); got.System != "sys" || got.MaxTokens != 400 {
		t.Fatalf("unexpected recorded request: %+v", got)
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}

	ctx = WithPurpose(ctx, PurposeSection)
	if p := PurposeFrom(ctx); p != "section" {
		t.Fatalf("expected 'section', got %q", p)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "poe without key",
			cfg:     Config{Provider: "openai", BaseURL: "https://api.poe.com", Model: "gpt-oss-20b"},
			wantErr: true,
		},
		{
			name:    "poe with key",
			cfg:     Config{Provider: "openai", BaseURL: "https://api.poe.com", Model: "gpt-oss-20b", APIKey: "k"},
			wantErr: false,
		},
		{
			name:    "local endpoint needs no key",
			cfg:     Config{Provider: "openai", BaseURL: "http://127.0.0.1:8000/v1", Model: "llama3"},
			wantErr: false,
		},
		{
			name:    "missing model",
			cfg:     Config{Provider: "anthropic", APIKey: "sk-test"},
			wantErr: true,
		},
		{
			name:    "mock needs nothing",
			cfg:     Config{Provider: "mock"},
			wantErr: false,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Capabilities(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "gpt-5"
	caps := cfg.Capabilities()
	if caps.Provider != ProviderPoe || caps.AllowTemperature || caps.AllowResponseFormat {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}

	cfg = Config{Provider: "gemini", Model: "gemini-flash"}
	if caps := cfg.Capabilities(); !caps.AllowResponseFormat || caps.Provider != ProviderGemini {
		t.Fatalf("unexpected gemini capabilities: %+v", caps)
	}
}

package llm

import "testing"

func TestResolveCapabilities(t *testing.T) {
	rules := ParseModelRules(DefaultNoTemperatureModels)

	tests := []struct {
		name  string
		base  string
		model string
		want  Capabilities
	}{
		{
			name:  "poe marketplace",
			base:  "https://api.poe.com/v1",
			model: "gpt-oss-20b",
			want:  Capabilities{Provider: ProviderPoe, AllowTemperature: true},
		},
		{
			name:  "poe gpt-5 rejects temperature",
			base:  "https://api.poe.com",
			model: "GPT-5-mini",
			want:  Capabilities{Provider: ProviderPoe},
		},
		{
			name:  "self-hosted",
			base:  "http://localhost:8000/v1",
			model: "llama-3",
			want: Capabilities{
				Provider:            ProviderOpenAICompatible,
				AllowResponseFormat: true,
				AllowTopP:           true,
				AllowTemperature:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCapabilities("", tt.base, tt.model, rules)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCapabilitiesApply(t *testing.T) {
	caps := Capabilities{Provider: ProviderPoe}
	req := caps.Apply(Request{
		Temperature: Float(0.1),
		TopP:        Float(1),
		JSONMode:    true,
	})
	if req.Temperature != nil || req.TopP != nil || req.JSONMode {
		t.Fatalf("expected optional fields stripped, got %+v", req)
	}
}

func TestParseModelRules(t *testing.T) {
	rules := ParseModelRules(" gpt-5* , o1-mini,, * ")
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if !rules[0].Match("gpt-5-nano") {
		t.Error("prefix rule should match gpt-5-nano")
	}
	if rules[1].Match("o1-mini-2") {
		t.Error("exact rule should not match o1-mini-2")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"":                           DefaultBaseURL,
		"https://api.poe.com/v1/":    "https://api.poe.com",
		"http://127.0.0.1:11434/v1":  "http://127.0.0.1:11434",
		"https://openrouter.ai/api/": "https://openrouter.ai/api",
	}
	for in, want := range tests {
		if got := NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLocalBaseURL(t *testing.T) {
	tests := map[string]bool{
		"http://localhost:8000":   true,
		"http://127.0.0.1:11434":  true,
		"http://[::1]:8080/v1":    true,
		"0.0.0.0:9000":            true,
		"https://api.poe.com":     false,
		"https://localhost.io/v1": false,
		"":                        false,
	}
	for in, want := range tests {
		if got := IsLocalBaseURL(in); got != want {
			t.Errorf("IsLocalBaseURL(%q) = %v, want %v", in, got, want)
		}
	}
}

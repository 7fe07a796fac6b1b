package llm

import (
	"net"
	"net/url"
	"strings"
)

// ProviderKind names the request dialect of a teacher endpoint.
type ProviderKind string

const (
	ProviderPoe              ProviderKind = "poe"
	ProviderOpenAICompatible ProviderKind = "openai-compatible"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderGemini           ProviderKind = "gemini"
)

// DefaultBaseURL is used when no teacher base URL is configured.
const DefaultBaseURL = "https://api.poe.com"

// DefaultNoTemperatureModels lists model families that reject an explicit
// temperature.
const DefaultNoTemperatureModels = "gpt-5*,o1*,o3*,o4*"

// Capabilities records which optional request fields an endpoint/model
// pair accepts. Resolve it once and pass it by value.
type Capabilities struct {
	Provider            ProviderKind
	AllowResponseFormat bool
	AllowTopP           bool
	AllowTemperature    bool
}

// ModelRule matches a model id exactly or, when Prefix is set, by prefix.
type ModelRule struct {
	Pattern string
	Prefix  bool
}

// Match reports whether model satisfies the rule. Matching is
// case-insensitive.
func (r ModelRule) Match(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if r.Prefix {
		return strings.HasPrefix(m, r.Pattern)
	}
	return m == r.Pattern
}

// ParseModelRules parses a comma separated rule list. A trailing '*' turns
// an entry into a prefix rule.
func ParseModelRules(raw string) []ModelRule {
	var rules []ModelRule
	for _, part := range strings.Split(raw, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" || p == "*" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			rules = append(rules, ModelRule{Pattern: strings.TrimSuffix(p, "*"), Prefix: true})
			continue
		}
		rules = append(rules, ModelRule{Pattern: p})
	}
	return rules
}

// DetectProvider infers the dialect from a base URL.
func DetectProvider(baseURL string) ProviderKind {
	if strings.Contains(strings.ToLower(baseURL), "poe.com") {
		return ProviderPoe
	}
	return ProviderOpenAICompatible
}

// ResolveCapabilities builds the descriptor for a provider/model pair.
// kind may be empty, in which case it is detected from baseURL.
func ResolveCapabilities(kind ProviderKind, baseURL, model string, noTemperature []ModelRule) Capabilities {
	if kind == "" {
		kind = DetectProvider(baseURL)
	}

	caps := Capabilities{Provider: kind, AllowTemperature: true}
	switch kind {
	case ProviderPoe:
	case ProviderAnthropic:
		caps.AllowTopP = true
	default:
		caps.AllowResponseFormat = true
		caps.AllowTopP = true
	}

	for _, r := range noTemperature {
		if r.Match(model) {
			caps.AllowTemperature = false
			break
		}
	}
	return caps
}

// Apply returns a copy of req with the unsupported optional fields cleared.
func (c Capabilities) Apply(req Request) Request {
	if !c.AllowTemperature {
		req.Temperature = nil
	}
	if !c.AllowTopP {
		req.TopP = nil
	}
	if !c.AllowResponseFormat {
		req.JSONMode = false
	}
	return req
}

// NormalizeBaseURL trims trailing slashes and a trailing /v1 segment so the
// gateway can append its own version prefix.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	return strings.TrimRight(base, "/")
}

// IsLocalBaseURL reports whether raw points at a loopback or unspecified
// host, which is how self-hosted inference endpoints are recognized.
func IsLocalBaseURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return false
		}
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

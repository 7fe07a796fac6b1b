// Package llm is the chat completion gateway used by every generator and
// validator. Backends implement Provider; retry and event logging are
// layered on as decorators.
package llm

import "context"

// Provider is the interface every teacher backend implements.
type Provider interface {
	// Generate sends a chat completion request and returns the message
	// content.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier for logging.
	ModelID() string
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-agnostic chat completion request. Optional knobs are
// pointers so that "unset" and "zero" stay distinguishable; Capabilities.Apply
// clears the ones an endpoint rejects.
type Request struct {
	System   string
	Messages []Message

	MaxTokens   int
	Temperature *float64
	TopP        *float64

	// JSONMode asks the endpoint for response_format json_object.
	JSONMode bool

	// RequireJSON makes the gateway treat a reply without a balanced JSON
	// object as a failed attempt.
	RequireJSON bool

	// Schema, when set, is used for structured output where the backend
	// supports it and for validating the reply.
	Schema *Schema
}

// Schema describes an expected JSON output shape.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Response is the normalized completion result.
type Response struct {
	Content    string
	Usage      Usage
	Model      string
	StopReason string // "end", "max_tokens"
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Float returns a pointer to v, for Request.Temperature and Request.TopP.
func Float(v float64) *float64 { return &v }

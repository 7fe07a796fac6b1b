package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	After   int64     // sequence > After
	Before  int64     // sequence < Before
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
	Purpose string
	RunID   string
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	RunID        string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored request event.
type LLMRequestEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// UsageStat aggregates calls and tokens for one purpose or model.
type UsageStat struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo provides access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns one event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]UsageStat, error)
	LLMUsageByModel(ctx context.Context) ([]UsageStat, error)
}

// Run status values.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one notebook generation request.
type Run struct {
	ID               string
	Fingerprint      string
	Subject          string
	Model            string
	Difficulty       string
	Status           string
	OutlineTitle     string
	Sections         int
	FallbackSections int
	ColabCompatible  bool
	QAStatus         string
	SemanticStatus   string
	OutputPath       string
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// RunRepo records generation runs.
type RunRepo interface {
	// StartRun inserts a run in the running state.
	StartRun(ctx context.Context, run Run) error

	// FinishRun updates the outcome columns of an existing run.
	FinishRun(ctx context.Context, run Run) error

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetRun returns one run, or nil if it does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)
}

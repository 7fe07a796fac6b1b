package outline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSubject is returned when neither a subject nor a custom title is
// given.
var ErrMissingSubject = errors.New("outline subject is required")

// GenerationError reports that no usable outline JSON could be obtained.
type GenerationError struct {
	Attempts int
	// Reason is "transport" when the gateway gave up, "parse" when replies
	// kept arriving without usable JSON.
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("outline generation failed after %d attempt(s) (%s): %v", e.Attempts, e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CompletenessError reports an outline that is structurally valid but
// carries filler or placeholder text.
type CompletenessError struct {
	Problems []string
}

func (e *CompletenessError) Error() string {
	return "outline completeness check failed: " + strings.Join(e.Problems, "; ")
}

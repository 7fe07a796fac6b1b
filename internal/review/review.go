// Package review dumps malformed or incomplete generations for operators.
//
// Artifacts land under <dir>/<scenario>/ so concurrent runs with different
// scenario slugs never interleave. Writing is best effort: a failure is
// logged and swallowed, never surfaced to the generator.
package review

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TraceFile is the append-only log written next to the artifacts.
const TraceFile = "trace.log"

const previewLen = 160

var unsafeSlug = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sink writes review artifacts. A nil *Sink or one with an empty dir is
// disabled and all methods are no-ops.
type Sink struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int
}

// Option customizes a Sink.
type Option func(*Sink)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithLogger sets the logger used to report write failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New returns a sink rooted at dir/<slug(scenario)>. An empty dir disables it.
func New(dir, scenario string, opts ...Option) *Sink {
	s := &Sink{logger: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if dir != "" {
		s.dir = filepath.Join(dir, Slug(scenario))
	}
	return s
}

// Slug sanitizes a scenario identifier for use as a directory name.
func Slug(scenario string) string {
	s := strings.TrimSpace(scenario)
	if s == "" {
		return "default"
	}
	return unsafeSlug.ReplaceAllString(s, "_")
}

// Enabled reports whether artifacts are written.
func (s *Sink) Enabled() bool {
	return s != nil && s.dir != ""
}

// Dir returns the scenario directory, or "" when disabled.
func (s *Sink) Dir() string {
	if !s.Enabled() {
		return ""
	}
	return s.dir
}

// Record writes one artifact file for a generation that needs a human look.
// kind names the producer (outline, section), reason the failure.
func (s *Sink) Record(kind, reason, content string, meta map[string]string) {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn().Err(err).Str("dir", s.dir).Msg("review sink unavailable")
		return
	}

	now := s.now().UTC()
	s.seq++
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format("2006-01-02T15:04:05.000Z"))
	name := fmt.Sprintf("%s-%s-%s-%03d.txt", Slug(kind), Slug(reason), stamp, s.seq)

	var b strings.Builder
	b.WriteString("# Human Review Artifact\n")
	fmt.Fprintf(&b, "Scenario: %s\n", filepath.Base(s.dir))
	fmt.Fprintf(&b, "Type: %s\n", kind)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Timestamp: %s\n", now.Format(time.RFC3339Nano))
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, meta[k])
	}
	b.WriteString("\n")
	b.WriteString(content)

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to write review artifact")
	}
}

// Trace appends one line to trace.log describing a generation attempt.
func (s *Sink) Trace(kind string, attempt int, phase, content string) {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn().Err(err).Str("dir", s.dir).Msg("review sink unavailable")
		return
	}

	line := fmt.Sprintf("%s\tkind=%s\tattempt=%d\tphase=%s\tpreview=%s\n",
		s.now().UTC().Format(time.RFC3339Nano), kind, attempt, phase, Preview(content))

	f, err := os.OpenFile(filepath.Join(s.dir, TraceFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to open review trace")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		s.logger.Warn().Err(err).Msg("failed to append review trace")
	}
}

// Preview returns the first 160 characters of content on a single line.
func Preview(content string) string {
	r := []rune(content)
	if len(r) > previewLen {
		r = r[:previewLen]
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(string(r))
}

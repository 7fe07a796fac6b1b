package review

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC) }
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "default", Slug(""))
	assert.Equal(t, "smoke_beginner_v2", Slug("smoke/beginner v2"))
	assert.Equal(t, "ok-name_1", Slug("ok-name_1"))
}

func TestSink_Disabled(t *testing.T) {
	var nilSink *Sink
	assert.False(t, nilSink.Enabled())
	nilSink.Record("outline", "no_json_object", "x", nil)
	nilSink.Trace("outline", 1, "parse_failed", "x")

	s := New("", "anything")
	assert.False(t, s.Enabled())
	assert.Equal(t, "", s.Dir())
}

func TestSink_RecordAndTrace(t *testing.T) {
	root := t.TempDir()
	s := New(root, "smoke/run", WithClock(fixedClock()))
	require.True(t, s.Enabled())
	assert.Equal(t, filepath.Join(root, "smoke_run"), s.Dir())

	s.Record("outline", "json_extraction_failed", "garbage reply", map[string]string{"attempt": "2"})
	s.Trace("outline", 2, "parse_failed", "line one\nline two")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var artifact string
	for _, e := range entries {
		if e.Name() != TraceFile {
			artifact = e.Name()
		}
	}
	assert.True(t, strings.HasPrefix(artifact, "outline-json_extraction_failed-2026-05-01T12-30-00-000Z"), artifact)

	body, err := os.ReadFile(filepath.Join(s.Dir(), artifact))
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Human Review Artifact\nScenario: smoke_run\nType: outline\nReason: json_extraction_failed\n")
	assert.Contains(t, string(body), "attempt: 2\n\ngarbage reply")

	trace, err := os.ReadFile(filepath.Join(s.Dir(), TraceFile))
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01T12:30:00Z\tkind=outline\tattempt=2\tphase=parse_failed\tpreview=line one line two\n", string(trace))
}

func TestSink_ConcurrentTraceIsAppendOnly(t *testing.T) {
	s := New(t.TempDir(), "concurrent")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trace("section", i, "fallback", "x")
			s.Record("section", "fallback", "x", nil)
		}()
	}
	wg.Wait()

	trace, err := os.ReadFile(filepath.Join(s.Dir(), TraceFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(trace)), "\n"), 20)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 21)
}

func TestSink_UnwritableDirDoesNotPanic(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	s := New(file, "x")
	s.Record("outline", "no_json_object", "x", nil)
	s.Trace("outline", 1, "parse_failed", "x")
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 200)
	assert.Len(t, Preview(long), 160)
	assert.Equal(t, "a b", Preview("a\nb"))
}

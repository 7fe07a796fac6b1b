package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "json", Writer: &buf})

	l.Info().Msg("hidden")
	c := Component(l, "outline")
	c.Warn().Int("attempt", 2).Msg("retrying")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "outline" || line["message"] != "retrying" || line["level"] != "warn" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestNew_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "bogus", Format: "json", Writer: &buf})
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line should be filtered at info level, got %q", buf.String())
	}
}

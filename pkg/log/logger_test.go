package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warning", LevelWarn},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{" error ", LevelError},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.expected)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("test")
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(LevelWarn)

	l.Debug("not shown")
	l.Info("not shown either")
	l.Warn("shown")
	l.Error("also shown")

	out := buf.String()
	if strings.Contains(out, "not shown") {
		t.Errorf("low-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "also shown") {
		t.Errorf("expected warn/error messages, got %q", out)
	}
}

func TestTextFormatFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("session")
	l.SetWriter(&buf)
	l.SetColorize(false)

	l.InfoFields("relay flipped", Fields{"level": "high", "cycle": 3})

	out := buf.String()
	if !strings.Contains(out, "session: relay flipped") {
		t.Errorf("missing prefix/message: %q", out)
	}
	// Fields render sorted by key.
	if !strings.Contains(out, "{cycle=3, level=high}") {
		t.Errorf("fields not rendered in sorted order: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("apiserver")
	l.SetWriter(&buf)
	l.SetFormat(FormatJSON)

	l.InfoFields("activated", Fields{"session": "tank1"})

	var entry struct {
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "INFO" || entry.Logger != "apiserver" || entry.Message != "activated" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["session"] != "tank1" {
		t.Errorf("missing field, got %+v", entry.Fields)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	parent := New("daemon")
	parent.SetWriter(&buf)
	parent.SetColorize(false)
	parent.SetLevel(LevelDebug)

	child := parent.WithPrefix("sampler")
	child.Debug("reading")

	if !strings.Contains(buf.String(), "sampler: reading") {
		t.Errorf("child prefix not applied: %q", buf.String())
	}
}

func TestFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	l := New("test")
	l.SetWriter(&buf)
	l.SetColorize(false)

	l.Info("cycle %d of %d", 3, 10)
	if !strings.Contains(buf.String(), "cycle 3 of 10") {
		t.Errorf("format args not applied: %q", buf.String())
	}
}

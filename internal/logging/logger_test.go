package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestComponentLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn, "Orchestrator")

	logger.Debug("hidden %d", 1)
	logger.Info("hidden too")
	logger.Warn("visible %s", "warning")
	logger.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("below-level lines leaked: %s", out)
	}
	if !strings.Contains(out, "visible warning") || !strings.Contains(out, "visible error") {
		t.Fatalf("expected warn and error lines, got: %s", out)
	}
	if !strings.Contains(out, "[Orchestrator]") {
		t.Fatalf("component tag missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) must return a usable logger")
	}
	var typed *componentLogger
	if !IsNil(Logger(typed)) {
		t.Fatalf("IsNil should detect typed nil")
	}
	OrNop(Logger(typed)).Info("must not panic")
}

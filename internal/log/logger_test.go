package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func resetLogger() {
	logger = nil
	once = *new(sync.Once)
}

func TestSetupWriter(t *testing.T) {
	resetLogger()
	t.Cleanup(resetLogger)

	var buf bytes.Buffer
	SetupWriter(&buf, "DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Get().Debug("visible")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"visible"`)) {
		t.Errorf("expected debug line in output, got %q", buf.String())
	}

	// Second setup is ignored.
	var other bytes.Buffer
	SetupWriter(&other, "ERROR", "text")
	Get().Info("still json")
	if other.Len() != 0 {
		t.Errorf("second SetupWriter should be a no-op, got %q", other.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	return out
}

func TestWithComponent(t *testing.T) {
	resetLogger()
	t.Cleanup(resetLogger)
	var buf bytes.Buffer
	SetupWriter(&buf, "INFO", "json")

	WithComponent("dispatch").Info("hello")

	out := decodeLine(t, &buf)
	if out["component"] != "dispatch" {
		t.Errorf("Expected component 'dispatch', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithProfile(t *testing.T) {
	resetLogger()
	t.Cleanup(resetLogger)
	var buf bytes.Buffer
	SetupWriter(&buf, "INFO", "json")

	WithProfile("claude/default").Info("profile msg")

	out := decodeLine(t, &buf)
	if out["profile"] != "claude/default" {
		t.Errorf("Expected profile 'claude/default', got %v", out["profile"])
	}
}

func TestWithAttempt(t *testing.T) {
	resetLogger()
	t.Cleanup(resetLogger)
	var buf bytes.Buffer
	SetupWriter(&buf, "INFO", "json")

	WithAttempt("attempt-123").Info("attempt msg")

	out := decodeLine(t, &buf)
	if out["attempt_id"] != "attempt-123" {
		t.Errorf("Expected attempt_id 'attempt-123', got %v", out["attempt_id"])
	}
}

func TestGetBeforeSetupIsSafeConcurrently(t *testing.T) {
	resetLogger()
	t.Cleanup(resetLogger)

	var buf bytes.Buffer
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 0 {
				SetupWriter(&buf, "INFO", "json")
				return
			}
			if Get() == nil {
				t.Error("Get returned nil")
			}
		}(i)
	}
	wg.Wait()

	first := Get()
	SetupWriter(&bytes.Buffer{}, "DEBUG", "text")
	if Get() != first {
		t.Error("Setup after the logger was installed should be a no-op")
	}
}

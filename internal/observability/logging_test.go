package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerAppliesDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info(context.Background(), "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output by default, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" {
		t.Fatalf("expected msg=hello, got %+v", record)
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "text"})
	logger.Info(context.Background(), "hello")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected text output, got what looks like JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected the message in the text output, got %q", buf.String())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Level: "warn"})
	logger.Info(context.Background(), "should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered out at warn level, got %q", buf.String())
	}
	logger.Warn(context.Background(), "should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected the warn message to appear, got %q", buf.String())
	}
}

func TestLoggerRedactsAPIKeysInMessagesAndArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info(context.Background(), "calling provider", "error", "api_key: sk-ant-"+strings.Repeat("a", 95))

	if strings.Contains(buf.String(), "sk-ant-") {
		t.Fatalf("expected the API key to be redacted, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("expected a redaction marker, got %q", buf.String())
	}
}

func TestLoggerCorrelatesIDsFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	ctx := WithSessionID(WithAgentID(context.Background(), "agent-1"), "session-1")
	logger.Info(ctx, "turn started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if record["session_id"] != "session-1" || record["agent_id"] != "agent-1" {
		t.Fatalf("expected correlated session_id/agent_id, got %+v", record)
	}
}

func TestWithFieldsAddsFieldsToSubsequentRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf}).WithFields("component", "runtime")
	logger.Info(context.Background(), "started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if record["component"] != "runtime" {
		t.Fatalf("expected component=runtime from WithFields, got %+v", record)
	}
}

func TestLogLevelFromStringUnrecognizedDefaultsToInfo(t *testing.T) {
	if got := LogLevelFromString("nonsense"); got != LogLevelFromString("info") {
		t.Fatalf("expected unrecognized level to fall back to info, got %v", got)
	}
}

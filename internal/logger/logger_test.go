package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	return out
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "sheetload-test"})

	ctx := base.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-7")
	ctx = SetSheet(ctx, "Loans")

	if got := FromContext(ctx).Data[FieldJobID]; got != "job-7" {
		t.Errorf("job_id field = %v, want job-7", got)
	}

	FromContext(ctx).Info("hello")
	out := decodeLine(t, &buf)
	if out["job_id"] != "job-7" || out["sheet"] != "Loans" {
		t.Errorf("context fields missing: %v", out)
	}
	if out["service"] != "sheetload-test" || out["message"] != "hello" || out["level"] != "info" {
		t.Errorf("unexpected base fields: %v", out)
	}
	if _, ok := out["timestamp"]; !ok {
		t.Errorf("timestamp missing: %v", out)
	}
}

func TestEntryUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Output: &buf, ServiceName: "sheetload-test"})
	ctx := SetComponent(base.WithContext(context.Background()), "chunk")

	With(Fields{FieldDurationMs: int64(12), FieldCount: 3}).Warn(ctx, "wrote %d chunks", 3)
	out := decodeLine(t, &buf)
	if out["component"] != "chunk" || out["level"] != "warning" {
		t.Errorf("unexpected entry: %v", out)
	}
	if out["duration_ms"] != float64(12) || out["count"] != float64(3) {
		t.Errorf("metric fields missing: %v", out)
	}
	if out["message"] != "wrote 3 chunks" {
		t.Errorf("message = %v", out["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "error", Output: &buf})
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line written at error level: %q", buf.String())
	}
	l.WithError(context.Canceled).Error("kept")
	if out := decodeLine(t, &buf); out["error"] != "context canceled" {
		t.Errorf("error field = %v", out["error"])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := GetDefault()
	defer SetDefaultLogger(prev)
	SetDefaultLogger(New(&Config{Output: &buf, ServiceName: "fallback"}))
	SetDefaultLogger(nil)

	FromContext(context.Background()).Info("from default")
	if out := decodeLine(t, &buf); out["service"] != "fallback" {
		t.Errorf("default logger not used: %v", out)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&Config{Format: "TEXT", Output: &buf}).WithField(FieldSheet, "Loans").Info("plain")
	line := buf.String()
	if !strings.Contains(line, "sheet=Loans") || !strings.Contains(line, "msg=plain") {
		t.Errorf("unexpected text line %q", line)
	}
	if !strings.Contains(line, "logger_test.go:") {
		t.Errorf("caller not shortened: %q", line)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE", "50")
	t.Setenv("LOG_COMPRESS", "false")

	cfg := LoadFromEnv()
	if cfg.Level != "debug" {
		t.Errorf("Level = %q", cfg.Level)
	}
	if cfg.MaxSize != 50 {
		t.Errorf("MaxSize = %d, want 50", cfg.MaxSize)
	}
	if cfg.MaxBackups != 7 {
		t.Errorf("MaxBackups = %d, want default 7", cfg.MaxBackups)
	}
	if cfg.Compress {
		t.Errorf("Compress should be false")
	}
	if cfg.Format != "json" || cfg.Environment != "local" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestEnsureKeepsExistingLogger(t *testing.T) {
	var first, second bytes.Buffer
	a := New(&Config{Output: &first, ServiceName: "a"})
	b := New(&Config{Output: &second, ServiceName: "b"})

	ctx := Ensure(context.Background(), a)
	ctx = Ensure(ctx, b)
	FromContext(ctx).Info("routed")
	if first.Len() == 0 || second.Len() != 0 {
		t.Errorf("expected the first logger to be kept, got a=%q b=%q", first.String(), second.String())
	}
	if Ensure(ctx, nil) != ctx {
		t.Errorf("nil logger should leave the context unchanged")
	}
}

package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf)
	t.Cleanup(func() { observability.SetOutput(os.Stdout) })

	ctx := observability.WithRequestID(context.Background(), "req-1")
	observability.LoggerFromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["request_id"] != "req-1" || entry["msg"] != "hello" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf)
	t.Cleanup(func() {
		observability.SetOutput(os.Stdout)
		observability.SetLevel("info")
	})

	observability.SetLevel("warn")
	observability.Logger().Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}

	observability.Logger().Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn line")
	}
}

package domain_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

func TestTransportErrorHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.7:443: connect: connection refused")
	err := domain.NewUpstreamTransportError(cause)

	if got := err.Error(); strings.Contains(got, "10.0.0.7") || got != "upstream request failed: could not reach the model provider" {
		t.Fatalf("unexpected user message %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should stay reachable through Unwrap")
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Error("failed", "error", err)
	if !strings.Contains(buf.String(), "connection refused") {
		t.Fatalf("expected cause in log entry, got %s", buf.String())
	}
}

func TestUpstreamErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *domain.Error
		want string
	}{
		{"status", domain.NewUpstreamStatusError(401, "bad key"), "upstream returned error (401): bad key"},
		{"status without body", domain.NewUpstreamStatusError(502, ""), "upstream returned error (502): unknown error"},
		{"provider message", domain.NewUpstreamError("overloaded"), "upstream request failed: overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
			if !domain.IsKind(tt.err, domain.KindUpstream) {
				t.Fatalf("expected upstream kind")
			}
		})
	}
}

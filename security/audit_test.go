package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func testAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_LogGrantIssued(t *testing.T) {
	auditor, buf := testAuditor(true)

	auditor.LogGrantIssued("user-1", "client-1", "192.0.2.1")

	out := buf.String()
	if !strings.Contains(out, "grant_issued") {
		t.Errorf("log output missing event type: %s", out)
	}
	if !strings.Contains(out, "client-1") {
		t.Errorf("log output missing client ID: %s", out)
	}
	if strings.Contains(out, "user-1") {
		t.Errorf("log output contains raw user ID: %s", out)
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := testAuditor(false)

	auditor.LogGrantIssued("user-1", "client-1", "192.0.2.1")
	auditor.LogRedemptionRejected("client-1", "192.0.2.1", "expired")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditor_LogRedemptionRejected(t *testing.T) {
	auditor, buf := testAuditor(true)

	auditor.LogRedemptionRejected("client-1", "192.0.2.1", "mismatch")

	out := buf.String()
	if !strings.Contains(out, "redemption_rejected") {
		t.Errorf("log output missing event type: %s", out)
	}
	if !strings.Contains(out, "mismatch") {
		t.Errorf("log output missing reason: %s", out)
	}
}

func TestHashForLogging(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"user ID", "user-12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hashForLogging(tt.input)
			if tt.input == "" {
				if got != "<empty>" {
					t.Errorf("hashForLogging(%q) = %q, want <empty>", tt.input, got)
				}
				return
			}
			if len(got) != 16 {
				t.Errorf("hashForLogging(%q) length = %d, want 16", tt.input, len(got))
			}
			if got == tt.input {
				t.Errorf("hashForLogging(%q) returned input unhashed", tt.input)
			}
		})
	}
}

func TestHashForLogging_Deterministic(t *testing.T) {
	if hashForLogging("user-1") != hashForLogging("user-1") {
		t.Error("hashForLogging is not deterministic")
	}
	if hashForLogging("user-1") == hashForLogging("user-2") {
		t.Error("hashForLogging collides on distinct inputs")
	}
}

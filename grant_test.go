package authserver

import (
	"strings"
	"testing"
)

func TestNewGrantSecret(t *testing.T) {
	secret := NewGrantSecret()

	if len(secret) < 22 {
		// 128 bits of entropy needs at least 22 base64url characters
		t.Errorf("secret too short: %d characters", len(secret))
	}
	if strings.Contains(secret, codeDelimiter) {
		t.Errorf("secret %q contains the code delimiter", secret)
	}

	if NewGrantSecret() == secret {
		t.Error("two generated secrets are identical")
	}
}

func TestEncodeCode(t *testing.T) {
	code := EncodeCode("g1", "abc")
	if code != "g1|abc" {
		t.Errorf("EncodeCode() = %q, want %q", code, "g1|abc")
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantID     string
		wantSecret string
		wantOK     bool
	}{
		{"valid code", "g1|abc", "g1", "abc", true},
		{"no delimiter", "g1abc", "", "", false},
		{"two delimiters", "g1|abc|extra", "", "", false},
		{"empty id", "|abc", "", "", false},
		{"empty secret", "g1|", "", "", false},
		{"only delimiter", "|", "", "", false},
		{"empty string", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, ok := ParseCode(tt.code)
			if ok != tt.wantOK || id != tt.wantID || secret != tt.wantSecret {
				t.Errorf("ParseCode(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.code, id, secret, ok, tt.wantID, tt.wantSecret, tt.wantOK)
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	secret := NewGrantSecret()
	id, got, ok := ParseCode(EncodeCode("grant-id-1", secret))
	if !ok || id != "grant-id-1" || got != secret {
		t.Errorf("round trip = (%q, %q, %v)", id, got, ok)
	}
}

package authserver

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewOAuthError(t *testing.T) {
	tests := []struct {
		name  string
		class RequestClass
		code  string
	}{
		{"eua invalid_request", ClassEndUserAuthorization, ErrorCodeInvalidRequest},
		{"eua unsupported_response_type", ClassEndUserAuthorization, ErrorCodeUnsupportedResponseType},
		{"eua invalid_client", ClassEndUserAuthorization, ErrorCodeInvalidClient},
		{"eua redirect_uri_mismatch", ClassEndUserAuthorization, ErrorCodeRedirectURIMismatch},
		{"oat invalid_request", ClassObtainAccessToken, ErrorCodeInvalidRequest},
		{"oat unsupported_grant_type", ClassObtainAccessToken, ErrorCodeUnsupportedGrantType},
		{"oat invalid_client", ClassObtainAccessToken, ErrorCodeInvalidClient},
		{"oat invalid_grant", ClassObtainAccessToken, ErrorCodeInvalidGrant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOAuthError(tt.class, tt.code)
			if err.Status != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", err.Status)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			want := tt.code + ": " + err.Description
			if err.Error() != want {
				t.Errorf("Error() = %q, want %q", err.Error(), want)
			}
		})
	}
}

func TestNewOAuthError_OutsideVocabulary(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewOAuthError with out-of-vocabulary id should panic")
		}
	}()

	// redirect_uri_mismatch is an eua id, not an oat one
	NewOAuthError(ClassObtainAccessToken, ErrorCodeRedirectURIMismatch)
}

func TestAsOAuthError(t *testing.T) {
	oauthErr := NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidGrant)

	if got, ok := AsOAuthError(oauthErr); !ok || got != oauthErr {
		t.Errorf("AsOAuthError(direct) = %v, %v", got, ok)
	}

	wrapped := fmt.Errorf("while exchanging: %w", oauthErr)
	if got, ok := AsOAuthError(wrapped); !ok || got != oauthErr {
		t.Errorf("AsOAuthError(wrapped) = %v, %v", got, ok)
	}

	if _, ok := AsOAuthError(errors.New("plain")); ok {
		t.Error("AsOAuthError(plain error) reported an OAuthError")
	}
}

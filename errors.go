package authserver

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeRedirectURIMismatch     = "redirect_uri_mismatch"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidGrant            = "invalid_grant"
)

// errorExceptionType is the fixed type tag carried by every error response
const errorExceptionType = "OAuthException"

// ErrResponseTypeNotImplemented marks a recognized response_type the server
// does not implement. Handlers answer it with 501, not with an OAuth error
// body.
var ErrResponseTypeNotImplemented = errors.New("response type not implemented")

// Error-id vocabularies are fixed per request class. Asking for an id
// outside its class's vocabulary is a programming error.
var errorVocabulary = map[RequestClass]map[string]string{
	ClassEndUserAuthorization: {
		ErrorCodeInvalidRequest:          "the request is missing a required parameter",
		ErrorCodeUnsupportedResponseType: "the requested response type is not supported",
		ErrorCodeInvalidClient:           "unknown or invalid client",
		ErrorCodeRedirectURIMismatch:     "the redirect_uri does not match the registered value",
	},
	ClassObtainAccessToken: {
		ErrorCodeInvalidRequest:       "the request is missing a required parameter or is otherwise malformed",
		ErrorCodeUnsupportedGrantType: "the requested grant type is not supported",
		ErrorCodeInvalidClient:        "client authentication failed",
		ErrorCodeInvalidGrant:         "the authorization code is invalid, expired, or already redeemed",
	},
}

// OAuthError represents a protocol error reported to the caller. It covers
// both request errors and validity failures; infrastructure errors never
// become OAuthErrors.
type OAuthError struct {
	Class       RequestClass // request class the error was raised in
	Code        string       // error id from the class's vocabulary
	Description string
	Status      int // HTTP status code, 400 for the whole vocabulary
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a protocol error for the given class and error id.
// The description comes from the class's fixed vocabulary; ids outside the
// vocabulary panic, since they indicate a bug rather than a request
// condition.
func NewOAuthError(class RequestClass, code string) *OAuthError {
	description, ok := errorVocabulary[class][code]
	if !ok {
		panic(fmt.Sprintf("oauth error id %q is not in the %s vocabulary", code, class))
	}
	return &OAuthError{
		Class:       class,
		Code:        code,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

// errorResponse is the wire shape of a protocol error:
// {"error":{"type":"OAuthException","message":"<id>: <description>"}}
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AsOAuthError extracts an *OAuthError from err, if there is one
func AsOAuthError(err error) (*OAuthError, bool) {
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr, true
	}
	return nil, false
}

package authserver

import "net/http"

// Token is the response body of a successful redemption. The access token
// is an opaque identifier bound to the user and client that produced it.
//
// SECURITY: the token value carries no integrity or confidentiality
// protection and is forgeable by anyone who knows the format. Replace the
// scheme (signed token, or a random identifier resolved via a token store)
// before exposing this server to untrusted callers.
type Token struct {
	AccessToken string `json:"access_token"`
}

// LoginRequest is the client context handed to the login flow when an
// authorization request passes validation. It is carried unchanged through
// the login/consent step and back into grant issuance.
type LoginRequest struct {
	ClientID    string
	ClientName  string
	RedirectURI string
	State       string
}

// LoginFlow is the external login/consent collaborator. The authorization
// endpoint delegates to BeginLogin after validating the request; the flow
// authenticates the user and is expected to eventually call back into
// Handler.FinishLogin with the authenticated user ID and the same
// LoginRequest.
type LoginFlow interface {
	BeginLogin(w http.ResponseWriter, r *http.Request, login *LoginRequest)
}

package authserver

import (
	"strings"

	"golang.org/x/oauth2"
)

// codeDelimiter joins the grant ID and secret into the wire code. Neither
// component can contain it: grant IDs are UUIDs and secrets are base64url.
const codeDelimiter = "|"

// NewGrantSecret generates a fresh high-entropy grant secret: 32 random
// bytes, base64url-encoded, so 256 bits of entropy and no delimiter
// characters.
func NewGrantSecret() string {
	return oauth2.GenerateVerifier()
}

// EncodeCode builds the authorization code handed to the client from a
// grant's store-assigned ID and its secret.
func EncodeCode(id, secret string) string {
	return id + codeDelimiter + secret
}

// ParseCode splits an authorization code into its grant ID and secret.
// A code must contain exactly one delimiter with non-empty parts on both
// sides; anything else is a malformed code, which callers treat as an
// invalid grant rather than a server error.
func ParseCode(code string) (id, secret string, ok bool) {
	parts := strings.Split(code, codeDelimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

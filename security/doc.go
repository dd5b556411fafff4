// Package security provides security features for the authorization server:
// per-identifier rate limiting, audit logging with PII hashing, client IP
// extraction behind proxies, and secure response headers.
package security

// Package authserver implements the server side of the OAuth2
// authorization-code grant for web-server clients: an end-user
// authorization endpoint that hands off to an external login flow, a grant
// issuer producing short-lived single-use authorization codes, and a token
// endpoint that atomically redeems a code for an access token.
package authserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/semu/auth-server/instrumentation"
	"github.com/semu/auth-server/internal/util"
	"github.com/semu/auth-server/security"
	"github.com/semu/auth-server/storage"
)

// grantIDLogLength is the number of grant ID characters included in logs
const grantIDLogLength = 8

// basicAuthPrefix is the scheme prefix stripped from the Authorization
// header at the token endpoint. The remainder is taken verbatim as the
// client secret; no base64 decoding is performed.
const basicAuthPrefix = "Basic "

// dummySecretHash is a bcrypt hash compared on the unknown-client path so
// client authentication takes similar time whether or not the client exists
var dummySecretHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Server implements the grant/token state machine. Stores are injected;
// the server holds no ambient globals.
type Server struct {
	clients storage.ClientStore
	grants  storage.GrantStore
	config  *Config
	logger  *slog.Logger

	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// New creates a Server backed by the given stores. A nil config gets the
// documented defaults; a nil logger falls back to slog.Default().
func New(clients storage.ClientStore, grants storage.GrantStore, config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		clients: clients,
		grants:  grants,
		config:  config,
		logger:  logger,
	}
}

// SetAuditor enables security audit logging
func (s *Server) SetAuditor(auditor *security.Auditor) {
	s.auditor = auditor
}

// SetInstrumentation enables OpenTelemetry metrics and tracing
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// startSpan starts a server span if tracing is enabled (nil-safe)
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// Authorize validates an end-user authorization request and resolves the
// client. On success it returns the login context to hand to the external
// login flow; no grant is created here.
//
// Protocol failures come back as *OAuthError; a recognized but
// unimplemented response_type comes back as ErrResponseTypeNotImplemented;
// anything else is an infrastructure error.
func (s *Server) Authorize(ctx context.Context, params url.Values) (*LoginRequest, error) {
	ctx, span := s.startSpan(ctx, "auth.authorize")
	defer span.End()

	check := CheckParams(ClassEndUserAuthorization, params)
	if len(check.MissingFields) > 0 {
		instrumentation.SetSpanError(span, "missing parameters")
		return nil, NewOAuthError(ClassEndUserAuthorization, ErrorCodeInvalidRequest)
	}
	if len(check.InvalidEnums) > 0 {
		instrumentation.SetSpanError(span, "unrecognized response_type")
		return nil, NewOAuthError(ClassEndUserAuthorization, ErrorCodeUnsupportedResponseType)
	}

	if params.Get("response_type") != ResponseTypeCode {
		instrumentation.SetSpanError(span, "response_type not implemented")
		return nil, ErrResponseTypeNotImplemented
	}

	clientID := params.Get("client_id")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, clientID),
		attribute.String(instrumentation.AttrResponseType, ResponseTypeCode),
	)

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.logger.Warn("Authorization request for unknown client", "client_id", clientID)
			instrumentation.SetSpanError(span, "unknown client")
			return nil, NewOAuthError(ClassEndUserAuthorization, ErrorCodeInvalidClient)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("client lookup: %w", err)
	}

	// The stored redirect_uri is authoritative; the request's value must
	// match it byte for byte
	if params.Get("redirect_uri") != client.RedirectURI {
		s.logger.Warn("Authorization request with mismatched redirect_uri",
			"client_id", clientID)
		instrumentation.SetSpanError(span, "redirect_uri mismatch")
		return nil, NewOAuthError(ClassEndUserAuthorization, ErrorCodeRedirectURIMismatch)
	}

	instrumentation.SetSpanSuccess(span)

	return &LoginRequest{
		ClientID:    client.ID,
		ClientName:  client.Name,
		RedirectURI: client.RedirectURI,
		State:       params.Get("state"),
	}, nil
}

// IssueGrant creates a single-use grant for an authenticated user and
// returns the URL the user agent is redirected to: the client's
// redirect_uri with the authorization code and, if present, the state.
//
// A persistence failure is an infrastructure error; no redirect carrying a
// code that was not durably stored is ever produced.
func (s *Server) IssueGrant(ctx context.Context, userID string, login *LoginRequest, clientIP string) (string, error) {
	ctx, span := s.startSpan(ctx, "auth.issue_grant")
	defer span.End()

	if userID == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}
	if login == nil {
		return "", fmt.Errorf("login request cannot be nil")
	}

	instrumentation.AddGrantFlowAttributes(span, login.ClientID, userID)

	secret := NewGrantSecret()

	grant, err := s.grants.CreateGrant(ctx, &storage.Grant{
		Secret:   secret,
		ClientID: login.ClientID,
		UserID:   userID,
	})
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("create grant: %w", err)
	}

	redirect, err := url.Parse(login.RedirectURI)
	if err != nil {
		// The URI was validated against the client record, so this is a
		// provisioning problem, not a request problem
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("parse redirect URI: %w", err)
	}

	query := redirect.Query()
	query.Set("code", EncodeCode(grant.ID, secret))
	if login.State != "" {
		query.Set("state", login.State)
	}
	redirect.RawQuery = query.Encode()

	s.logger.Info("Issued grant",
		"grant_id_prefix", util.SafeTruncate(grant.ID, grantIDLogLength),
		"client_id", login.ClientID)

	if s.inst != nil {
		s.inst.Metrics().RecordGrantIssued(ctx, login.ClientID)
	}
	if s.auditor != nil {
		s.auditor.LogGrantIssued(userID, login.ClientID, clientIP)
	}
	instrumentation.SetSpanSuccess(span)

	return redirect.String(), nil
}

// Redeem validates and atomically consumes the grant behind an
// authorization code, producing a Token. All validity failures (malformed
// code, unknown, expired, or mismatched grant) come back as invalid_grant;
// store failures propagate as infrastructure errors.
func (s *Server) Redeem(ctx context.Context, code, clientID string) (*Token, error) {
	grant, err := s.redeemGrant(ctx, code, clientID)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: grant.UserID + "," + grant.ClientID}, nil
}

// redeemGrant is Redeem's engine; it returns the consumed grant so callers
// can reach the user ID.
func (s *Server) redeemGrant(ctx context.Context, code, clientID string) (*storage.Grant, error) {
	ctx, span := s.startSpan(ctx, "auth.redeem")
	defer span.End()

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, clientID))

	id, secret, ok := ParseCode(code)
	if !ok {
		s.logger.Warn("Redemption with malformed code", "client_id", clientID)
		s.recordRedemptionRejected(ctx, span, "malformed_code")
		return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidGrant)
	}

	grant, err := s.grants.ConsumeGrant(ctx, id, clientID, secret)
	if err != nil {
		if storage.IsGrantRejection(err) {
			reason := rejectionReason(err)
			s.logger.Warn("Redemption rejected",
				"grant_id_prefix", util.SafeTruncate(id, grantIDLogLength),
				"client_id", clientID,
				"reason", reason)
			s.recordRedemptionRejected(ctx, span, reason)
			return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidGrant)
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("consume grant: %w", err)
	}

	s.logger.Info("Redeemed grant",
		"grant_id_prefix", util.SafeTruncate(id, grantIDLogLength),
		"client_id", clientID)

	if s.inst != nil {
		s.inst.Metrics().RecordGrantRedeemed(ctx, clientID)
	}
	instrumentation.AddGrantFlowAttributes(span, clientID, grant.UserID)
	instrumentation.SetSpanSuccess(span)

	return grant, nil
}

// ExchangeCode processes a token request end to end: schema validation,
// client authentication, redirect_uri verification, and redemption.
func (s *Server) ExchangeCode(ctx context.Context, params url.Values, authHeader, clientIP string) (*Token, error) {
	ctx, span := s.startSpan(ctx, "auth.exchange_code")
	defer span.End()

	check := CheckParams(ClassObtainAccessToken, params)
	if !check.OK() {
		instrumentation.SetSpanError(span, "missing parameters")
		return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidRequest)
	}

	grantType := params.Get("grant_type")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, grantType))
	if grantType != GrantTypeAuthorizationCode {
		instrumentation.SetSpanError(span, "unsupported grant type")
		return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeUnsupportedGrantType)
	}

	secret, err := resolveClientSecret(authHeader, params.Get("client_secret"))
	if err != nil {
		instrumentation.SetSpanError(span, "client secret not supplied exactly once")
		return nil, err
	}

	clientID := params.Get("client_id")
	client, err := s.authenticateClient(ctx, clientID, secret)
	if err != nil {
		if oauthErr, ok := AsOAuthError(err); ok {
			instrumentation.SetSpanError(span, oauthErr.Code)
			if s.auditor != nil {
				s.auditor.LogAuthFailure(clientID, clientIP, oauthErr.Code)
			}
		} else {
			instrumentation.RecordError(span, err)
		}
		return nil, err
	}

	// redirect_uri must match the registered value; a mismatch here is a
	// grant-validity failure, not a request error
	if params.Get("redirect_uri") != client.RedirectURI {
		s.logger.Warn("Token request with mismatched redirect_uri", "client_id", client.ID)
		instrumentation.SetSpanError(span, "redirect_uri mismatch")
		return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidGrant)
	}

	grant, err := s.redeemGrant(ctx, params.Get("code"), client.ID)
	if err != nil {
		if _, ok := AsOAuthError(err); ok && s.auditor != nil {
			s.auditor.LogRedemptionRejected(client.ID, clientIP, ErrorCodeInvalidGrant)
		}
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.LogGrantRedeemed(grant.UserID, client.ID, clientIP)
	}
	instrumentation.SetSpanSuccess(span)

	return &Token{AccessToken: grant.UserID + "," + grant.ClientID}, nil
}

// authenticateClient resolves the client and verifies its secret in
// constant time. When the client does not exist, a bcrypt comparison
// against a fixed dummy hash keeps the unknown-client path from returning
// measurably faster.
func (s *Server) authenticateClient(ctx context.Context, clientID, secret string) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(secret))
			s.logger.Warn("Token request for unknown client", "client_id", clientID)
			return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidClient)
		}
		return nil, fmt.Errorf("client lookup: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		s.logger.Warn("Token request with wrong client secret", "client_id", clientID)
		return nil, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidClient)
	}

	return client, nil
}

// resolveClientSecret enforces the exactly-once rule: the secret arrives
// via the Authorization header or the client_secret field, never both and
// never neither. The header's "Basic " prefix is stripped and the rest
// taken verbatim.
func resolveClientSecret(authHeader, formSecret string) (string, error) {
	headerSecret := strings.TrimPrefix(authHeader, basicAuthPrefix)

	switch {
	case headerSecret != "" && formSecret != "":
		return "", NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidRequest)
	case headerSecret == "" && formSecret == "":
		return "", NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidRequest)
	case headerSecret != "":
		return headerSecret, nil
	default:
		return formSecret, nil
	}
}

// rejectionReason maps a grant rejection sentinel to a metrics/audit label
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, storage.ErrGrantExpired):
		return "expired"
	case errors.Is(err, storage.ErrGrantMismatch):
		return "mismatch"
	default:
		return "not_found"
	}
}

// recordRedemptionRejected records the rejection metric (nil-safe)
func (s *Server) recordRedemptionRejected(ctx context.Context, span trace.Span, reason string) {
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrRejectionReason, reason))
	instrumentation.SetSpanError(span, reason)
	if s.inst != nil {
		s.inst.Metrics().RecordRedemptionRejected(ctx, reason)
	}
}

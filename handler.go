package authserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/semu/auth-server/instrumentation"
	"github.com/semu/auth-server/security"
)

const contentTypeJSON = "application/json"

// Handler is a thin HTTP adapter for the Server. It parses requests,
// applies rate limiting and security headers, and delegates the protocol
// logic to the Server and the login flow collaborator.
type Handler struct {
	server    *Server
	loginFlow LoginFlow
	logger    *slog.Logger
	tracer    trace.Tracer
	limiter   *security.RateLimiter
}

// NewHandler creates a new HTTP handler. The login flow collaborator
// receives control after a valid authorization request and calls back into
// FinishLogin once the user has authenticated and consented.
func NewHandler(server *Server, loginFlow LoginFlow, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:    server,
		loginFlow: loginFlow,
		logger:    logger,
	}

	if server.inst != nil {
		h.tracer = server.inst.Tracer("http")
	}

	if server.config.RateLimitPerSecond > 0 {
		h.limiter = security.NewRateLimiter(
			server.config.RateLimitPerSecond,
			server.config.RateLimitBurst,
			logger)
	}

	return h
}

// Close releases the handler's background resources
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// RegisterRoutes registers the authorization and token endpoints on mux at
// the configured paths.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(h.server.config.AuthorizePath, h.ServeAuthorization)
	mux.HandleFunc(h.server.config.TokenPath, h.ServeToken)
}

// ServeAuthorization handles the end-user authorization request. GET and
// POST are both accepted; parameters come from the query string or the
// form body.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "auth.http.authorization")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.recordHTTPMetrics(r, "authorization", http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(r, "authorization", http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "unparseable request")
		h.writeOAuthError(w, NewOAuthError(ClassEndUserAuthorization, ErrorCodeInvalidRequest))
		return
	}

	clientIP := h.clientIP(r)
	if h.rateLimited(w, r, "authorization", clientIP, startTime) {
		return
	}

	login, err := h.server.Authorize(ctx, r.Form)
	if err != nil {
		switch {
		case errors.Is(err, ErrResponseTypeNotImplemented):
			h.recordHTTPMetrics(r, "authorization", http.StatusNotImplemented, startTime)
			instrumentation.SetSpanError(span, "response_type not implemented")
			security.SetSecurityHeaders(w, h.server.config.ServerURL)
			http.Error(w, "response_type not implemented", http.StatusNotImplemented)
		default:
			h.writeProtocolOrUnknown(w, r, "authorization", err, span, startTime)
		}
		return
	}

	h.recordHTTPMetrics(r, "authorization", http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	// Hand off to the external login flow; it will call FinishLogin once
	// the user has authenticated
	h.loginFlow.BeginLogin(w, r, login)
}

// FinishLogin is the callback for the login flow collaborator: once the
// user has authenticated and consented, it issues the grant and redirects
// the user agent back to the client.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request, userID string, login *LoginRequest) {
	startTime := time.Now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "auth.http.finish_login")
		defer span.End()
	}

	redirectURL, err := h.server.IssueGrant(ctx, userID, login, h.clientIP(r))
	if err != nil {
		h.recordHTTPMetrics(r, "finish_login", http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		h.writeUnknownError(w, err)
		return
	}

	h.recordHTTPMetrics(r, "finish_login", http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles the token request: it authenticates the client and
// redeems the authorization code for an access token.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var span trace.Span
	ctx := r.Context()
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "auth.http.token")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(r, "token", http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(r, "token", http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "unparseable request")
		h.writeOAuthError(w, NewOAuthError(ClassObtainAccessToken, ErrorCodeInvalidRequest))
		return
	}

	clientIP := h.clientIP(r)
	if h.rateLimited(w, r, "token", clientIP, startTime) {
		return
	}

	token, err := h.server.ExchangeCode(ctx, r.PostForm, r.Header.Get("Authorization"), clientIP)
	if err != nil {
		h.writeProtocolOrUnknown(w, r, "token", err, span, startTime)
		return
	}

	h.recordHTTPMetrics(r, "token", http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)

	security.SetSecurityHeaders(w, h.server.config.ServerURL)
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(token); err != nil {
		h.logger.Error("Failed to encode token response", "error", err)
	}
}

// clientIP extracts the requester's IP per the proxy trust configuration
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.config.TrustProxyHeaders, h.server.config.TrustedProxyCount)
}

// rateLimited enforces the per-IP limit. It writes the response and
// returns true when the request must not proceed.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, endpoint, clientIP string, startTime time.Time) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "endpoint", endpoint, "ip", clientIP)
	if h.server.inst != nil {
		h.server.inst.Metrics().RecordRateLimitExceeded(r.Context(), "per_ip")
	}
	if h.server.auditor != nil {
		h.server.auditor.LogRateLimitExceeded(clientIP, "")
	}
	h.recordHTTPMetrics(r, endpoint, http.StatusTooManyRequests, startTime)

	security.SetSecurityHeaders(w, h.server.config.ServerURL)
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	return true
}

// writeProtocolOrUnknown writes a protocol error as an OAuthException body
// and anything else as an opaque server error.
func (h *Handler) writeProtocolOrUnknown(w http.ResponseWriter, r *http.Request, endpoint string, err error, span trace.Span, startTime time.Time) {
	if oauthErr, ok := AsOAuthError(err); ok {
		h.recordHTTPMetrics(r, endpoint, oauthErr.Status, startTime)
		instrumentation.SetSpanError(span, oauthErr.Code)
		h.writeOAuthError(w, oauthErr)
		return
	}

	h.recordHTTPMetrics(r, endpoint, http.StatusInternalServerError, startTime)
	instrumentation.RecordError(span, err)
	h.writeUnknownError(w, err)
}

// writeOAuthError writes a protocol error in the OAuthException wire shape
func (h *Handler) writeOAuthError(w http.ResponseWriter, oauthErr *OAuthError) {
	security.SetSecurityHeaders(w, h.server.config.ServerURL)
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(oauthErr.Status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorDetail{
			Type:    errorExceptionType,
			Message: oauthErr.Error(),
		},
	})
}

// writeUnknownError logs the failure with full detail and answers with a
// generic server error carrying no internal detail.
func (h *Handler) writeUnknownError(w http.ResponseWriter, err error) {
	h.logger.Error("Internal error", "error", err)
	security.SetSecurityHeaders(w, h.server.config.ServerURL)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// recordHTTPMetrics records request count and duration (nil-safe)
func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	if h.server.inst == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Milliseconds())
	h.server.inst.Metrics().RecordHTTPRequest(r.Context(), endpoint, r.Method, status, durationMs)
}

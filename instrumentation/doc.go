// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// Instrumentation is optional everywhere it is accepted: a nil
// *Instrumentation disables recording, and a disabled Config uses no-op
// providers with zero overhead. Metric instruments cover the HTTP layer
// (request counts and durations), the grant lifecycle (issued, redeemed,
// rejected), security events (rate limiting), and storage operations.
//
// SECURITY: Never record actual credential values (grant secrets, client
// secrets, access tokens) in metric attributes or span attributes. Only
// metadata such as client IDs, outcome labels, and durations is recorded.
package instrumentation

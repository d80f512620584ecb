// Package observability provides structured logging, Prometheus metrics,
// and graceful shutdown for the asque API server.
//
// The Logger wraps stdlib slog with a JSON handler and a statically
// configured minimum level ordered debug < info < warn < error.
// Request-scoped fields (request_id, user_id) travel on the context and
// are attached via FromContext.
package observability

// Package middleware provides the HTTP middleware chain: request-id
// assignment, structured request logging with metrics, OIDC bearer-token
// authentication and per-class rate limiting.
package middleware

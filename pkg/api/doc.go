// Package api composes the HTTP layer: route registration, request
// validation, the middleware chain and the error classifier that is
// the single translation point from domain errors to HTTP responses.
//
// Every handler follows the same pipeline: authentication gate, rate
// limiting, cache lookup on reads, business logic, cache invalidation
// on writes, error classification.
package api

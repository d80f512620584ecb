// Package store provides persistence for users, clients, products,
// quotes and settings backed by PostgreSQL.
//
// All methods take a context and return domain errors from the
// apperrors package so callers can distinguish conflicts, missing
// rows and bad references without inspecting driver internals.
package store

// Package cache provides a keyed TTL store with tag-based group invalidation.
//
// Two implementations exist: an in-process MemoryStore (the default) and a
// RedisStore for horizontally scaled deployments. Both sit behind the Store
// interface so call sites never depend on the backing store.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a keyed TTL store with tag-based group invalidation. Values are
// raw bytes; use GetJSON/SetJSON for structured values.
type Store interface {
	// Get returns the value for key, or ok=false on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set unconditionally overwrites key with value and the given TTL,
	// associating the entry with the given tags.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string)
	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string)
	// InvalidateTag removes every entry tagged with tag and returns the
	// number of entries removed.
	InvalidateTag(ctx context.Context, tag string) int
	// Clear removes all entries.
	Clear(ctx context.Context)
	// Cleanup purges expired entries and returns the number removed.
	Cleanup(ctx context.Context) int
}

// GetJSON reads key and unmarshals it into dest. Returns false on miss or
// on an undecodable entry (which is dropped).
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it under key. Marshal failures are
// silently dropped; the cache degrades to a miss on next read.
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration, tags ...string) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.Set(ctx, key, raw, ttl, tags...)
}

// Cache key builders, one per cached view.

func KeyUserSubscription(userID string) string { return "subscription:" + userID }
func KeyUserSettings(userID string) string     { return "settings:" + userID }
func KeyQuoteList(userID string) string        { return "quotes:list:" + userID }
func KeyQuote(quoteID string) string           { return "quote:" + quoteID }
func KeyProductList(userID string) string      { return "products:list:" + userID }
func KeyClientList(userID string) string       { return "clients:list:" + userID }

// Cache tags for grouped invalidation. A write to an entity invalidates
// every cached view derived from it without tracking exact key sets.

func TagUser(userID string) string         { return "user:" + userID }
func TagQuotes(userID string) string       { return "quotes:" + userID }
func TagProducts(userID string) string     { return "products:" + userID }
func TagClients(userID string) string      { return "clients:" + userID }
func TagSubscription(userID string) string { return "subscription:" + userID }

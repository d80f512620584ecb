// Package ratelimit implements exact sliding-window request throttling.
//
// Unlike a fixed-bucket counter, the sliding window counts requests in the
// trailing interval ending at "now", so no rolling window ever admits more
// than the configured maximum. Each endpoint class carries its own window
// configuration, and a (class, identifier) pair is tracked independently.
package ratelimit

import (
	"context"
	"time"

	"github.com/asque/asque/pkg/observability"
)

// Config defines one rate limit window.
type Config struct {
	// Window is the sliding time window.
	Window time.Duration
	// MaxRequests is the maximum number of requests admitted per window.
	MaxRequests int
}

// Result reports the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter throttles requests per key using an exact sliding window.
type Limiter interface {
	// Check admits or rejects one request for key under cfg. Admitted
	// requests are recorded.
	Check(ctx context.Context, key string, cfg Config) (Result, error)
	// Reset clears the window for key (test/administrative use).
	Reset(ctx context.Context, key string) error
	// Cleanup drops identifiers idle longer than maxIdle and returns the
	// number of keys removed.
	Cleanup(ctx context.Context, maxIdle time.Duration) int
}

// Class names a predefined rate limit configuration.
type Class string

const (
	ClassAuth            Class = "auth"
	ClassSubscription    Class = "subscription"
	ClassQuoteCreateFree Class = "quote_create_free"
	ClassQuoteCreatePro  Class = "quote_create_pro"
	ClassQuoteList       Class = "quote_list"
	ClassDefault         Class = "api_default"
)

// Limits maps each endpoint class to its window configuration.
var Limits = map[Class]Config{
	ClassAuth:            {Window: time.Minute, MaxRequests: 5},
	ClassSubscription:    {Window: time.Minute, MaxRequests: 10},
	ClassQuoteCreateFree: {Window: time.Hour, MaxRequests: 10},
	ClassQuoteCreatePro:  {Window: time.Hour, MaxRequests: 60},
	ClassQuoteList:       {Window: time.Minute, MaxRequests: 30},
	ClassDefault:         {Window: time.Minute, MaxRequests: 20},
}

// Key composes the limiter key for an identifier under a class, so the same
// identifier is tracked independently per endpoint class.
func Key(class Class, identifier string) string {
	return string(class) + ":" + identifier
}

// CheckLimit checks identifier against the named class and logs rejections.
func CheckLimit(ctx context.Context, limiter Limiter, identifier string, class Class) (Result, error) {
	cfg, ok := Limits[class]
	if !ok {
		cfg = Limits[ClassDefault]
	}

	result, err := limiter.Check(ctx, Key(class, identifier), cfg)
	if err != nil {
		return Result{}, err
	}

	if !result.Allowed {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"identifier": identifier,
			"limit_type": string(class),
			"reset_at":   result.ResetAt.Format(time.RFC3339),
		}).Warn("rate limit exceeded")
	}
	return result, nil
}

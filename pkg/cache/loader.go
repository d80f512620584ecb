package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader provides read-through caching with miss deduplication: when
// several requests miss the same key concurrently, only one executes the
// load function and the rest share its result.
type Loader struct {
	store Store
	group singleflight.Group
}

// NewLoader creates a Loader over the given store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// GetOrLoad reads key into dest, loading and caching on miss. The loaded
// value must be JSON-marshalable.
func (l *Loader) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, tags []string, load func(context.Context) (interface{}, error)) error {
	if GetJSON(ctx, l.store, key, dest) {
		return nil
	}

	raw, err, _ := l.group.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		l.store.Set(ctx, key, encoded, ttl, tags...)
		return encoded, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(raw.([]byte), dest)
}

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/cache/port"
	"github.com/Srirag-c-r/dealGOAT/internal/observability"
)

// Cached wraps a Geocoder with a key-value cache. Cache trouble never
// fails a search; it degrades to hitting the upstream directly.
type Cached struct {
	next  Geocoder
	cache port.Cache
	ttl   time.Duration
}

func NewCached(next Geocoder, cache port.Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

var _ Geocoder = (*Cached)(nil)

func (c *Cached) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := "geocode:" + strings.ToLower(query)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var candidates []Candidate
		if jsonErr := json.Unmarshal([]byte(raw), &candidates); jsonErr == nil {
			return candidates, nil
		}
	} else if !errors.Is(err, port.ErrMiss) {
		observability.Logger().Warn("geocode cache read failed", "query", query, "err", err)
	}

	candidates, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(candidates); jsonErr == nil {
		if setErr := c.cache.Set(ctx, key, string(raw), c.ttl); setErr != nil {
			observability.Logger().Warn("geocode cache write failed", "query", query, "err", setErr)
		}
	}
	return candidates, nil
}

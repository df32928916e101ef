package cache

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

// Kind identifies one cached sub-state of a match.
type Kind string

const (
	KindMatchData Kind = "match_data"
	KindPlayers   Kind = "players"
	KindEventData Kind = "event_data"
	KindStats     Kind = "stats"
	KindPlayClock Kind = "playclock"
	KindGameClock Kind = "gameclock"
)

// Invalidator is the interface change handlers call before broadcasting, so a
// read-through request issued after the notification never sees stale data.
type Invalidator interface {
	Invalidate(matchID int64, kind Kind)
}

// Cache is a TTL-bounded in-process cache of rendered match payloads.
type Cache struct {
	items *ttlcache.Cache[string, any]
}

// New creates a cache whose entries expire after ttl even without an explicit
// invalidation.
func New(ttl time.Duration) *Cache {
	items := ttlcache.New[string, any](
		ttlcache.WithTTL[string, any](ttl),
	)
	go items.Start()
	return &Cache{items: items}
}

// Get returns the cached value for a match sub-state, if present.
func (c *Cache) Get(matchID int64, kind Kind) (any, bool) {
	item := c.items.Get(cacheKey(matchID, kind))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores a rendered payload under the match sub-state key.
func (c *Cache) Set(matchID int64, kind Kind, value any) {
	c.items.Set(cacheKey(matchID, kind), value, ttlcache.DefaultTTL)
}

// Invalidate drops the cached payload for one match sub-state.
func (c *Cache) Invalidate(matchID int64, kind Kind) {
	c.items.Delete(cacheKey(matchID, kind))
	log.Debug().
		Int64("match_id", matchID).
		Str("kind", string(kind)).
		Msg("cache invalidated")
}

// Stop halts the background expiration loop.
func (c *Cache) Stop() {
	c.items.Stop()
}

func cacheKey(matchID int64, kind Kind) string {
	return fmt.Sprintf("%s:%d", kind, matchID)
}

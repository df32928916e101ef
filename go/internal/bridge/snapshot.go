package bridge

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/matchpulse/livesync/go/internal/cache"
	"github.com/matchpulse/livesync/go/internal/gameclock"
)

// PayloadCache is the read-through side of the payload cache. The change
// handlers invalidate entries; the snapshotter populates them, so a burst of
// viewers joining the same match costs one fetch per sub-state.
type PayloadCache interface {
	Get(matchID int64, kind cache.Kind) (any, bool)
	Set(matchID int64, kind cache.Kind, value any)
}

// Snapshotter renders the full current state of a match for a newly connected
// viewer: scoreboard row, play list, roster, statistics, and both clocks. A
// viewer joining mid-match sees the live state immediately instead of waiting
// for the next change.
type Snapshotter struct {
	store  MatchStore
	cache  PayloadCache
	clocks *gameclock.Registry
	clock  clockwork.Clock
}

// NewSnapshotter creates a snapshotter over the shared store, payload cache,
// and clock registry.
func NewSnapshotter(store MatchStore, c PayloadCache, clocks *gameclock.Registry, clk clockwork.Clock) *Snapshotter {
	return &Snapshotter{store: store, cache: c, clocks: clocks, clock: clk}
}

// MatchSnapshot returns the current-state payloads for one match, in the same
// envelope shapes the change handlers broadcast. Sub-states that fail to load
// are skipped; the viewer converges through the change stream.
func (s *Snapshotter) MatchSnapshot(ctx context.Context, matchID int64) []any {
	var out []any
	if p, ok := s.payload(ctx, matchID, cache.KindMatchData); ok {
		out = append(out, p)
	}
	if p, ok := s.payload(ctx, matchID, cache.KindEventData); ok {
		out = append(out, p)
	}
	if p, ok := s.payload(ctx, matchID, cache.KindPlayers); ok {
		out = append(out, p)
	}
	if p, ok := s.payload(ctx, matchID, cache.KindStats); ok {
		out = append(out, p)
	}
	for _, kind := range []gameclock.Kind{gameclock.KindGameClock, gameclock.KindPlayClock} {
		if c := s.clocks.Get(matchID, kind); c != nil {
			state := c.Snapshot()
			out = append(out, map[string]any{
				"type":       string(kind),
				"match_id":   matchID,
				string(kind): state,
			})
		}
	}
	return out
}

// payload returns the cached envelope for one sub-state, fetching and caching
// it on a miss.
func (s *Snapshotter) payload(ctx context.Context, matchID int64, kind cache.Kind) (any, bool) {
	if p, ok := s.cache.Get(matchID, kind); ok {
		return p, true
	}

	p, err := s.render(ctx, matchID, kind)
	if err != nil {
		log.Error().
			Err(err).
			Int64("match_id", matchID).
			Str("kind", string(kind)).
			Msg("failed to render snapshot payload")
		return nil, false
	}
	s.cache.Set(matchID, kind, p)
	return p, true
}

func (s *Snapshotter) render(ctx context.Context, matchID int64, kind cache.Kind) (any, error) {
	switch kind {
	case cache.KindMatchData:
		match, err := s.store.GetMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":     "match",
			"match_id": matchID,
			"match":    match,
		}, nil

	case cache.KindEventData:
		events, err := s.store.ListEvents(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":     "events",
			"match_id": matchID,
			"events":   events,
		}, nil

	case cache.KindPlayers:
		players, err := s.store.ListPlayers(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":     "players",
			"match_id": matchID,
			"players":  players,
		}, nil

	default:
		stats, err := s.store.ComputeMatchStats(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":             "stats_sync",
			"match_id":         matchID,
			"stats":            stats,
			"server_timestamp": s.clock.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}

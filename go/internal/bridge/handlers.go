package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matchpulse/livesync/go/internal/cache"
	"github.com/matchpulse/livesync/go/internal/gameclock"
	"github.com/matchpulse/livesync/go/internal/models"
)

// MatchStore defines what the change handlers need from the storage layer
// when a notification carries only identifiers and the full view must be
// re-fetched.
type MatchStore interface {
	GetMatch(ctx context.Context, matchID int64) (*models.Match, error)
	ListPlayers(ctx context.Context, matchID int64) ([]models.Player, error)
	ListEvents(ctx context.Context, matchID int64) ([]models.PlayEvent, error)
	ComputeMatchStats(ctx context.Context, matchID int64) (*models.MatchStats, error)
}

// Broadcaster delivers a payload to every viewer of a match.
type Broadcaster interface {
	Broadcast(matchID int64, payload any)
}

// StatsAcceptor receives server-computed statistics snapshots. The acceptor
// owns the authoritative timestamp and the stats broadcast.
type StatsAcceptor interface {
	AcceptServer(matchID int64, stats *models.MatchStats)
}

// Deps bundles the collaborators shared by every change handler.
type Deps struct {
	Store       MatchStore
	Cache       cache.Invalidator
	Broadcaster Broadcaster
	Clocks      *gameclock.Registry
	Stats       StatsAcceptor
	Throttle    StatsGate
}

// NewHandlers builds the complete channel-to-handler mapping. Every channel
// in AllChannels has an entry; adding a channel without a handler here is a
// wiring bug caught at startup.
func NewHandlers(deps Deps) map[Channel]Handler {
	return map[Channel]Handler{
		ChannelMatch:     &matchHandler{deps},
		ChannelEvent:     &eventHandler{deps},
		ChannelPlayer:    &playerHandler{deps},
		ChannelPlayClock: &clockHandler{deps, gameclock.KindPlayClock, cache.KindPlayClock},
		ChannelGameClock: &clockHandler{deps, gameclock.KindGameClock, cache.KindGameClock},
		ChannelStats:     &statsHandler{deps},
	}
}

// matchHandler forwards scoreboard-level match changes. The emitting trigger
// sends the full row image, so no re-fetch is needed unless it is absent.
type matchHandler struct {
	deps Deps
}

func (h *matchHandler) Handle(ctx context.Context, ev ChangeEvent) error {
	h.deps.Cache.Invalidate(ev.MatchID, cache.KindMatchData)

	var match *models.Match
	if len(ev.Data) > 0 {
		match = &models.Match{}
		if err := json.Unmarshal(ev.Data, match); err != nil {
			return fmt.Errorf("decode match row image: %w", err)
		}
	} else {
		var err error
		match, err = h.deps.Store.GetMatch(ctx, ev.MatchID)
		if err != nil {
			return fmt.Errorf("fetch match %d: %w", ev.MatchID, err)
		}
	}

	h.deps.Broadcaster.Broadcast(ev.MatchID, map[string]any{
		"type":     "match",
		"match_id": ev.MatchID,
		"match":    match,
	})
	return nil
}

// eventHandler handles play-by-play changes. The trigger sends identifiers
// only, so the full ordered event list is re-fetched. A play change also
// invalidates the derived statistics and, throttled, recomputes and pushes
// them as a separate broadcast.
type eventHandler struct {
	deps Deps
}

func (h *eventHandler) Handle(ctx context.Context, ev ChangeEvent) error {
	h.deps.Cache.Invalidate(ev.MatchID, cache.KindEventData)

	events, err := h.deps.Store.ListEvents(ctx, ev.MatchID)
	if err != nil {
		return fmt.Errorf("fetch events for match %d: %w", ev.MatchID, err)
	}

	h.deps.Broadcaster.Broadcast(ev.MatchID, map[string]any{
		"type":     "events",
		"match_id": ev.MatchID,
		"events":   events,
	})

	h.deps.Cache.Invalidate(ev.MatchID, cache.KindStats)
	if !h.deps.Throttle.AllowStats(ctx, ev.MatchID) {
		log.Debug().Int64("match_id", ev.MatchID).Msg("stats recompute throttled")
		return nil
	}

	stats, err := h.deps.Store.ComputeMatchStats(ctx, ev.MatchID)
	if err != nil {
		return fmt.Errorf("compute stats for match %d: %w", ev.MatchID, err)
	}
	h.deps.Stats.AcceptServer(ev.MatchID, stats)
	return nil
}

// playerHandler handles roster changes, always re-fetching the full list.
type playerHandler struct {
	deps Deps
}

func (h *playerHandler) Handle(ctx context.Context, ev ChangeEvent) error {
	h.deps.Cache.Invalidate(ev.MatchID, cache.KindPlayers)

	players, err := h.deps.Store.ListPlayers(ctx, ev.MatchID)
	if err != nil {
		return fmt.Errorf("fetch players for match %d: %w", ev.MatchID, err)
	}

	h.deps.Broadcaster.Broadcast(ev.MatchID, map[string]any{
		"type":     "players",
		"match_id": ev.MatchID,
		"players":  players,
	})
	return nil
}

// clockRow is the row image the clock triggers emit.
type clockRow struct {
	Value     *int64              `json:"value,omitempty"`
	MaxValue  *int64              `json:"max_value,omitempty"`
	Direction gameclock.Direction `json:"direction,omitempty"`
	Status    gameclock.Status    `json:"status"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
}

// clockHandler applies play/game clock changes to the in-process clock and
// broadcasts the computed state. One instance per clock kind.
type clockHandler struct {
	deps      Deps
	kind      gameclock.Kind
	cacheKind cache.Kind
}

func (h *clockHandler) Handle(ctx context.Context, ev ChangeEvent) error {
	h.deps.Cache.Invalidate(ev.MatchID, h.cacheKind)

	if ev.Operation == OpDelete {
		h.deps.Clocks.Remove(ev.MatchID, h.kind)
		h.deps.Broadcaster.Broadcast(ev.MatchID, map[string]any{
			"type":         string(h.kind),
			"match_id":     ev.MatchID,
			string(h.kind): nil,
		})
		return nil
	}

	var row clockRow
	if err := json.Unmarshal(ev.Data, &row); err != nil {
		return fmt.Errorf("decode %s row image: %w", h.kind, err)
	}

	clock := h.clockFor(ev.MatchID, row)
	if row.Value != nil {
		clock.SetValue(*row.Value)
	}
	switch row.Status {
	case gameclock.StatusRunning:
		// The row pairs the frozen value with the transition instant; using
		// that instant keeps the notify latency out of the displayed value.
		if row.StartedAt != nil {
			clock.StartAt(*row.StartedAt)
		} else {
			clock.Start()
		}
	case gameclock.StatusPaused:
		clock.Pause()
	case gameclock.StatusStopped:
		clock.Stop()
	default:
		return fmt.Errorf("unknown %s status %q", h.kind, row.Status)
	}
	// The notification came from a committed row, so storage already holds
	// this state.
	clock.MarkDBSynced()

	state := clock.Snapshot()
	h.deps.Broadcaster.Broadcast(ev.MatchID, map[string]any{
		"type":         string(h.kind),
		"match_id":     ev.MatchID,
		string(h.kind): state,
	})
	return nil
}

func (h *clockHandler) clockFor(matchID int64, row clockRow) *gameclock.Clock {
	value := int64(0)
	if row.Value != nil {
		value = *row.Value
	}
	maxValue := value
	if row.MaxValue != nil {
		maxValue = *row.MaxValue
	}
	direction := row.Direction
	if direction == "" {
		direction = gameclock.DirectionDown
	}
	return h.deps.Clocks.GetOrCreate(matchID, h.kind, value, maxValue, direction)
}

// statsHandler handles direct statistics-table mutations (operator
// corrections). The recomputed snapshot enters through the resolver so it
// becomes the authoritative state clients reconcile against.
type statsHandler struct {
	deps Deps
}

func (h *statsHandler) Handle(ctx context.Context, ev ChangeEvent) error {
	h.deps.Cache.Invalidate(ev.MatchID, cache.KindStats)

	stats, err := h.deps.Store.ComputeMatchStats(ctx, ev.MatchID)
	if err != nil {
		return fmt.Errorf("compute stats for match %d: %w", ev.MatchID, err)
	}
	h.deps.Stats.AcceptServer(ev.MatchID, stats)
	return nil
}

package gameclock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// StateWriter persists clock state back to storage.
type StateWriter interface {
	SaveClockState(ctx context.Context, state State) error
}

// Broadcaster delivers a payload to every viewer of a match.
type Broadcaster interface {
	Broadcast(matchID int64, payload any)
}

// SyncerConfig holds timing configuration for the periodic clock syncer.
type SyncerConfig struct {
	TickInterval time.Duration // how often running clocks are inspected
	SyncInterval time.Duration // max staleness before a persist+broadcast
}

// DefaultSyncerConfig returns the default syncer timing.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		TickInterval: time.Second,
		SyncInterval: 5 * time.Second,
	}
}

// Syncer periodically persists and re-broadcasts running clocks so viewers
// that missed a transition event converge within SyncInterval. The clock value
// itself is derived from wall time, so a missed tick here never skews it.
type Syncer struct {
	registry    *Registry
	writer      StateWriter
	broadcaster Broadcaster
	cfg         SyncerConfig
	clock       clockwork.Clock
}

// NewSyncer creates a syncer over the given registry.
func NewSyncer(registry *Registry, writer StateWriter, broadcaster Broadcaster, cfg SyncerConfig, clk clockwork.Clock) *Syncer {
	return &Syncer{
		registry:    registry,
		writer:      writer,
		broadcaster: broadcaster,
		cfg:         cfg,
		clock:       clk,
	}
}

// Run drives the sync loop until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	log.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("sync_interval", s.cfg.SyncInterval).
		Msg("clock syncer started")

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("clock syncer shutting down")
			return
		case <-ticker.Chan():
			s.SyncDue(ctx)
		}
	}
}

// SyncDue persists and broadcasts every running clock whose last sync is older
// than SyncInterval.
func (s *Syncer) SyncDue(ctx context.Context) {
	for _, c := range s.registry.Running() {
		if !c.NeedsDBSync(s.cfg.SyncInterval) {
			continue
		}

		state := c.Snapshot()
		if err := s.writer.SaveClockState(ctx, state); err != nil {
			log.Error().
				Err(err).
				Int64("match_id", c.MatchID).
				Str("kind", string(c.Kind)).
				Msg("failed to persist clock state")
			continue
		}
		c.MarkDBSynced()

		s.broadcaster.Broadcast(c.MatchID, clockEnvelope(state))

		log.Debug().
			Int64("match_id", c.MatchID).
			Str("kind", string(c.Kind)).
			Int64("value", state.Value).
			Msg("clock state synced")
	}
}

// clockEnvelope builds the outbound message for a clock update. Clients key
// off the kind-specific top-level field, so the payload is not nested under a
// generic data key.
func clockEnvelope(state State) map[string]any {
	return map[string]any{
		"type":            string(state.Kind),
		"match_id":        state.MatchID,
		string(state.Kind): state,
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/matchpulse/livesync/go/internal/bridge"
	"github.com/matchpulse/livesync/go/internal/cache"
	"github.com/matchpulse/livesync/go/internal/gameclock"
	"github.com/matchpulse/livesync/go/internal/hub"
	"github.com/matchpulse/livesync/go/internal/relay"
	"github.com/matchpulse/livesync/go/internal/stats"
	"github.com/matchpulse/livesync/go/internal/store"
)

type Services struct {
	Store      *store.Store
	Cache      *cache.Cache
	Clocks     *gameclock.Registry
	Hub        *hub.Hub
	WSHandler  *hub.WebSocketHandler
	Resolver   *stats.Resolver
	Listener   *bridge.Listener
	Dispatcher *bridge.Dispatcher
	Syncer     *gameclock.Syncer
	Relay      *relay.Relay
}

// setupServices wires the dependency chain explicitly: store and cache at the
// bottom, the hub in the middle, the bridge and syncer on top. Nothing is
// package-global; teardown follows the context passed to each Run loop.
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clk := clockwork.NewRealClock()

	st, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	payloadCache := cache.New(cfg.cacheTTL())
	clocks := gameclock.NewRegistry(clk)
	restoreClocks(ctx, st, clocks, clk)

	h := hub.New(hubConfig(cfg), clk)

	// Optional NATS mirror for sibling instances.
	var broadcaster bridge.Broadcaster = h
	var natsRelay *relay.Relay
	if cfg.NATS.Enabled {
		relayCfg := relay.DefaultConfig()
		relayCfg.URL = cfg.NATS.URL
		relayCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		natsRelay, err = relay.New(relayCfg)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect NATS relay: %w", err)
		}
		broadcaster = relay.Multi{h, natsRelay}
	}

	resolver := stats.NewResolver(h, h, clk)
	snapshotter := bridge.NewSnapshotter(st, payloadCache, clocks, clk)
	wsHandler := hub.NewWebSocketHandler(h, resolver, snapshotter)

	// Single instance throttles in process; with the NATS mirror on, sibling
	// instances share the persisted claim so only one recomputes per window.
	var statsGate bridge.StatsGate = bridge.NewThrottle(cfg.statsThrottle(), clk)
	if cfg.NATS.Enabled {
		statsGate = store.NotifyGate{Store: st, Window: cfg.statsThrottle()}
	}

	handlers := bridge.NewHandlers(bridge.Deps{
		Store:       st,
		Cache:       payloadCache,
		Broadcaster: broadcaster,
		Clocks:      clocks,
		Stats:       resolver,
		Throttle:    statsGate,
	})

	listenerCfg := bridge.DefaultListenerConfig()
	listenerCfg.DatabaseURL = cfg.DSN()
	listener := bridge.NewListener(listenerCfg, bridge.AllChannels())
	dispatcher := bridge.NewDispatcher(listener.Events(), handlers)

	syncerCfg := gameclock.DefaultSyncerConfig()
	syncerCfg.SyncInterval = cfg.clockSync()
	syncer := gameclock.NewSyncer(clocks, st, broadcaster, syncerCfg, clk)

	return &Services{
		Store:      st,
		Cache:      payloadCache,
		Clocks:     clocks,
		Hub:        h,
		WSHandler:  wsHandler,
		Resolver:   resolver,
		Listener:   listener,
		Dispatcher: dispatcher,
		Syncer:     syncer,
		Relay:      natsRelay,
	}, nil
}

// hubConfig applies the realtime tuning from the config file onto the
// transport defaults.
func hubConfig(cfg *Config) hub.ClientConfig {
	c := hub.DefaultClientConfig()
	c.StaleTimeout = cfg.staleTimeout()
	return c
}

// restoreClocks rebuilds running clocks from storage so elapsed time survives
// a restart. Failures here degrade to empty clocks, not a dead process.
func restoreClocks(ctx context.Context, st *store.Store, clocks *gameclock.Registry, clk clockwork.Clock) {
	states, err := st.ListRunningClocks(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to restore running clocks")
		return
	}
	for _, state := range states {
		c, err := gameclock.Restore(state, clk)
		if err != nil {
			log.Error().
				Err(err).
				Int64("match_id", state.MatchID).
				Str("kind", string(state.Kind)).
				Msg("skipping invalid persisted clock")
			continue
		}
		clocks.Put(c)
	}
	if len(states) > 0 {
		log.Info().Int("clocks", len(states)).Msg("restored running clocks")
	}
}

// Close tears services down in reverse dependency order.
func (s *Services) Close() {
	if s.Relay != nil {
		s.Relay.Close()
	}
	s.Cache.Stop()
	s.Store.Close()
}

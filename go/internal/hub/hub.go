package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Hub owns the set of live client connections and the per-match subscriber
// lists. All registry mutation goes through the hub's single mutex so a
// broadcast never iterates a list while a connect or disconnect mutates it.
// Hubs are constructed explicitly and injected; there is no package-level
// instance.
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]*Client
	subscriptions map[int64]map[string]*Client

	config ClientConfig
	clock  clockwork.Clock
}

// ClientConfig holds per-connection transport configuration.
type ClientConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendQueueSize  int
	StaleTimeout   time.Duration
	CleanupEvery   time.Duration
}

// DefaultClientConfig returns the default transport configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 16 * 1024,
		SendQueueSize:  256,
		StaleTimeout:   5 * time.Minute,
		CleanupEvery:   time.Minute,
	}
}

// New creates an empty hub.
func New(config ClientConfig, clk clockwork.Clock) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		subscriptions: make(map[int64]map[string]*Client),
		config:        config,
		clock:         clk,
	}
}

// Connect registers a client subscribed to one match. A client id that is
// already connected is disconnected first, so a reused identifier or a match
// switch behaves as disconnect+connect.
func (h *Hub) Connect(clientID string, matchID int64) *Client {
	if existing := h.get(clientID); existing != nil {
		h.Disconnect(clientID)
	}

	c := &Client{
		ID:           clientID,
		MatchID:      matchID,
		Send:         make(chan []byte, h.config.SendQueueSize),
		hub:          h,
		lastActivity: h.clock.Now(),
	}

	h.mu.Lock()
	h.clients[clientID] = c
	subs, ok := h.subscriptions[matchID]
	if !ok {
		subs = make(map[string]*Client)
		h.subscriptions[matchID] = subs
	}
	subs[clientID] = c
	total := len(subs)
	h.mu.Unlock()

	log.Info().
		Str("client_id", clientID).
		Int64("match_id", matchID).
		Int("match_subscribers", total).
		Msg("client connected")
	return c
}

// Disconnect removes the client currently registered under clientID from the
// active table and every subscriber list, closes its queue, and closes the
// transport if one is attached. Safe to call twice.
func (h *Hub) Disconnect(clientID string) {
	if c := h.get(clientID); c != nil {
		h.disconnectClient(c)
	}
}

// disconnectClient tears down one specific client instance. The registry is
// only touched while c is still the instance registered under its id, so a
// dying pump from a replaced connection closes its own transport without
// removing the replacement.
func (h *Hub) disconnectClient(c *Client) {
	h.mu.Lock()
	current := h.clients[c.ID] == c
	if current {
		delete(h.clients, c.ID)
		for matchID, subs := range h.subscriptions {
			if subs[c.ID] == c {
				delete(subs, c.ID)
				if len(subs) == 0 {
					delete(h.subscriptions, matchID)
				}
			}
		}
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.Send)
		if c.conn != nil {
			c.conn.Close()
		}
	})

	if current {
		log.Info().
			Str("client_id", c.ID).
			Int64("match_id", c.MatchID).
			Msg("client disconnected")
	}
}

// Broadcast enqueues payload onto the queue of every subscriber of matchID in
// call order. Matches with no subscribers are a no-op; a client that vanished
// between event emission and broadcast is silently skipped.
func (h *Hub) Broadcast(matchID int64, payload any) {
	h.broadcast(matchID, "", payload)
}

// BroadcastExcept is Broadcast minus one originating client, used on the
// stats path to avoid echoing an update back to its submitter.
func (h *Hub) BroadcastExcept(matchID int64, exceptClientID string, payload any) {
	h.broadcast(matchID, exceptClientID, payload)
}

func (h *Hub) broadcast(matchID int64, exceptClientID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Int64("match_id", matchID).Msg("failed to marshal broadcast payload")
		return
	}

	h.mu.RLock()
	subs := h.subscriptions[matchID]
	targets := make([]*Client, 0, len(subs))
	for id, c := range subs {
		if exceptClientID != "" && id == exceptClientID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}

	log.Debug().
		Int64("match_id", matchID).
		Int("subscribers", len(targets)).
		Msg("payload broadcast")
}

// SendTo delivers payload to a single client, if it is still connected.
func (h *Hub) SendTo(clientID string, payload any) {
	c := h.get(clientID)
	if c == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("failed to marshal payload")
		return
	}
	h.enqueue(c, data)
}

// enqueue pushes data onto the client's queue without blocking. A full queue
// means the client is too slow or gone; it is dropped so one stalled reader
// never delays delivery to the others.
func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("client_id", c.ID).
			Int64("match_id", c.MatchID).
			Msg("send queue full, dropping client")
		h.disconnectClient(c)
	}
}

// CleanupStale disconnects every client whose last activity is older than
// timeout, bounding memory and socket usage from clients that disappeared
// without a clean close.
func (h *Hub) CleanupStale(timeout time.Duration) int {
	now := h.clock.Now()

	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if now.Sub(c.LastActivity()) > timeout {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Info().Str("client_id", c.ID).Msg("dropping stale client")
		h.disconnectClient(c)
	}
	return len(stale)
}

// RunCleanup drives periodic stale-client cleanup until ctx is cancelled.
func (h *Hub) RunCleanup(ctx context.Context) {
	ticker := h.clock.NewTicker(h.config.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.CleanupStale(h.config.StaleTimeout)
		}
	}
}

// Subscribers returns the client ids currently subscribed to a match.
func (h *Hub) Subscribers(matchID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subscriptions[matchID]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// Stats returns connection counts for the health endpoint.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perMatch := make(map[int64]int, len(h.subscriptions))
	for matchID, subs := range h.subscriptions {
		perMatch[matchID] = len(subs)
	}
	return map[string]any{
		"total_connections": len(h.clients),
		"active_matches":    len(h.subscriptions),
		"match_subscribers": perMatch,
	}
}

func (h *Hub) get(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// attach binds an upgraded websocket connection to a registered client.
func (h *Hub) attach(c *Client, conn *websocket.Conn) {
	c.conn = conn
}

package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/matchpulse/livesync/go/internal/models"
)

// Broadcaster is the subset of the hub the resolver needs for fanout.
type Broadcaster interface {
	Broadcast(matchID int64, payload any)
	BroadcastExcept(matchID int64, exceptClientID string, payload any)
	SendTo(clientID string, payload any)
}

// Disconnector detaches a client on an explicit disconnect message.
type Disconnector interface {
	Disconnect(clientID string)
}

// clientMessage is the inbound wire shape on the stats path.
type clientMessage struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Stats     json.RawMessage `json:"stats"`
}

type matchState struct {
	lastAccepted time.Time
	snapshot     any
}

// Resolver arbitrates between server-computed statistics and statistics
// snapshots submitted by connected clients, which may race. The rule is
// last-writer-wins on the update timestamp: snapshots are whole-document
// replacements, never merged. Losers get the authoritative snapshot pushed
// back so they can reconcile.
type Resolver struct {
	mu      sync.Mutex
	matches map[int64]*matchState

	broadcaster  Broadcaster
	disconnector Disconnector
	clock        clockwork.Clock
}

// NewResolver creates a resolver broadcasting through b.
func NewResolver(b Broadcaster, d Disconnector, clk clockwork.Clock) *Resolver {
	return &Resolver{
		matches:      make(map[int64]*matchState),
		broadcaster:  b,
		disconnector: d,
		clock:        clk,
	}
}

// AcceptServer installs a server-computed snapshot as the authoritative state
// and broadcasts it to every subscriber of the match.
func (r *Resolver) AcceptServer(matchID int64, stats *models.MatchStats) {
	now := r.clock.Now()

	r.mu.Lock()
	r.matches[matchID] = &matchState{lastAccepted: now, snapshot: stats}
	r.mu.Unlock()

	r.broadcaster.Broadcast(matchID, statsEnvelope("stats_update", matchID, stats, now))

	log.Debug().
		Int64("match_id", matchID).
		Time("server_timestamp", now).
		Msg("server stats accepted")
}

// HandleClientMessage implements the hub's inbound protocol. Malformed
// messages are dropped without closing the connection.
func (r *Resolver) HandleClientMessage(clientID string, matchID int64, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("client_id", clientID).
			Msg("dropping unparsable client message")
		return
	}

	switch msg.Type {
	case "disconnect":
		r.disconnector.Disconnect(clientID)
	case "stats_update":
		r.resolve(clientID, matchID, msg)
	default:
		log.Debug().
			Str("client_id", clientID).
			Str("type", msg.Type).
			Msg("ignoring unknown client message type")
	}
}

// resolve applies the last-writer-wins rule to one client candidate.
func (r *Resolver) resolve(clientID string, matchID int64, msg clientMessage) {
	if len(msg.Stats) == 0 || msg.Timestamp == "" {
		log.Debug().
			Str("client_id", clientID).
			Int64("match_id", matchID).
			Msg("dropping stats update with missing fields")
		return
	}
	candidateTS, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		log.Debug().
			Err(err).
			Str("client_id", clientID).
			Int64("match_id", matchID).
			Msg("dropping stats update with unparsable timestamp")
		return
	}

	r.mu.Lock()
	state, ok := r.matches[matchID]
	if !ok {
		state = &matchState{}
		r.matches[matchID] = state
	}

	if !candidateTS.After(state.lastAccepted) {
		authoritative := state.snapshot
		lastAccepted := state.lastAccepted
		r.mu.Unlock()

		// Stale candidate: reconcile the originator only.
		r.broadcaster.SendTo(clientID, statsEnvelope("stats_sync", matchID, authoritative, lastAccepted))
		log.Debug().
			Str("client_id", clientID).
			Int64("match_id", matchID).
			Time("candidate", candidateTS).
			Time("last_accepted", lastAccepted).
			Msg("stale stats candidate rejected")
		return
	}

	state.lastAccepted = candidateTS
	state.snapshot = msg.Stats
	r.mu.Unlock()

	r.broadcaster.BroadcastExcept(matchID, clientID, statsEnvelope("stats_update", matchID, msg.Stats, candidateTS))

	log.Debug().
		Str("client_id", clientID).
		Int64("match_id", matchID).
		Time("accepted", candidateTS).
		Msg("client stats candidate accepted")
}

// Forget drops a match's resolution state once the match is over.
func (r *Resolver) Forget(matchID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, matchID)
}

func statsEnvelope(msgType string, matchID int64, stats any, serverTS time.Time) map[string]any {
	return map[string]any{
		"type":             msgType,
		"match_id":         matchID,
		"stats":            stats,
		"server_timestamp": serverTS.Format(time.RFC3339),
	}
}

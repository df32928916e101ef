package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// InboundHandler receives messages a connected client sends to the server.
// Malformed messages must be dropped without closing the connection.
type InboundHandler interface {
	HandleClientMessage(clientID string, matchID int64, data []byte)
}

// SnapshotProvider renders the current-state payloads a viewer needs on
// connect, so a client joining mid-match does not wait for the next change.
type SnapshotProvider interface {
	MatchSnapshot(ctx context.Context, matchID int64) []any
}

// WebSocketHandler upgrades viewer HTTP requests and hands the resulting
// connections to the hub.
type WebSocketHandler struct {
	hub      *Hub
	inbound  InboundHandler
	snapshot SnapshotProvider
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the upgrade handler. inbound and snapshot may
// be nil for broadcast-only deployments.
func NewWebSocketHandler(h *Hub, inbound InboundHandler, snapshot SnapshotProvider) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      h,
		inbound:  inbound,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Overlay clients connect from scoreboard domains; origin
				// enforcement happens at the proxy.
				return true
			},
		},
	}
}

// HandleMatchConnection handles a viewer connection for one match.
// Clients identify with a client_id query param; one is assigned if absent.
func (h *WebSocketHandler) HandleMatchConnection(w http.ResponseWriter, r *http.Request) {
	matchIDStr := r.URL.Query().Get("match_id")
	if matchIDStr == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	matchID, err := strconv.ParseInt(matchIDStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid match_id format", http.StatusBadRequest)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().
			Err(err).
			Int64("match_id", matchID).
			Str("client_id", clientID).
			Msg("failed to upgrade websocket connection")
		return
	}

	client := h.hub.Connect(clientID, matchID)
	h.hub.attach(client, conn)

	// Queue the initial state before the pumps start so it precedes any
	// broadcast triggered by a later change.
	if h.snapshot != nil {
		for _, payload := range h.snapshot.MatchSnapshot(r.Context(), matchID) {
			h.hub.SendTo(clientID, payload)
		}
	}

	go client.writePump()
	go client.readPump(h.inbound)

	log.Info().
		Str("client_id", clientID).
		Int64("match_id", matchID).
		Msg("websocket connection established")
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.hub.Stats())
}

// RegisterRoutes registers the websocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/match", h.HandleMatchConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write json response")
	}
}

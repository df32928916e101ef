package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Broadcaster is implemented by the hub, the relay, and Multi.
type Broadcaster interface {
	Broadcast(matchID int64, payload any)
}

// Config holds NATS relay configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "livesync.match",
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Relay mirrors every broadcast envelope onto NATS subjects
// `<prefix>.<match_id>.<type>` so sibling instances can serve the same match
// to their own clients. Delivery is best effort, matching the at-most-once
// contract of the websocket path.
type Relay struct {
	nc  *nats.Conn
	cfg Config
}

// New connects to NATS with supervised reconnection handled by the client.
func New(cfg Config) (*Relay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Relay{nc: nc, cfg: cfg}, nil
}

// Broadcast publishes the envelope to its match/type subject. Errors are
// logged and dropped; the relay never blocks the local fanout path.
func (r *Relay) Broadcast(matchID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Int64("match_id", matchID).Msg("failed to marshal relay payload")
		return
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		envelope.Type = "unknown"
	}

	subject := fmt.Sprintf("%s.%d.%s", r.cfg.SubjectPrefix, matchID, envelope.Type)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish to NATS")
	}
}

// Connected reports whether the NATS connection is up, for health checks.
func (r *Relay) Connected() bool {
	return r.nc != nil && r.nc.IsConnected()
}

// Close drains and closes the connection.
func (r *Relay) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}

// Multi fans one broadcast out to several broadcasters, typically the local
// hub plus the NATS relay.
type Multi []Broadcaster

func (m Multi) Broadcast(matchID int64, payload any) {
	for _, b := range m {
		b.Broadcast(matchID, payload)
	}
}

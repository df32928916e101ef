package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ConnState is the lifecycle state of the underlying notification connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// ListenerConfig holds configuration for the notification listener.
type ListenerConfig struct {
	DatabaseURL    string        // Postgres DSN for LISTEN/NOTIFY
	ReconnectDelay time.Duration // fixed delay between reconnect attempts
	PingInterval   time.Duration
	EventBuffer    int // decoded-event channel capacity
}

// DefaultListenerConfig returns the default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		ReconnectDelay: 2 * time.Second,
		PingInterval:   90 * time.Second,
		EventBuffer:    256,
	}
}

// Listener owns one dedicated, long-lived LISTEN/NOTIFY connection and turns
// raw notifications into decoded ChangeEvents on its Events channel. The
// connection is supervised: the run loop re-establishes it whenever it drops
// rather than terminating, forever. Only the run loop touches the underlying
// pq handle; state transitions are serialized by the state mutex so at most
// one (re)connect attempt is ever in flight.
type Listener struct {
	cfg      ListenerConfig
	channels []Channel
	events   chan ChangeEvent

	stateMu sync.Mutex
	state   ConnState
	pql     *pq.Listener
}

// NewListener creates a listener for the given channels. Call Run to start it.
func NewListener(cfg ListenerConfig, channels []Channel) *Listener {
	return &Listener{
		cfg:      cfg,
		channels: channels,
		events:   make(chan ChangeEvent, cfg.EventBuffer),
		state:    StateDisconnected,
	}
}

// Events exposes the stream of decoded change events, in source delivery
// order per channel.
func (l *Listener) Events() <-chan ChangeEvent {
	return l.events
}

// Healthy reports whether the notification connection is currently up.
func (l *Listener) Healthy() bool {
	return l.State() == StateConnected
}

// State returns the current connection state.
func (l *Listener) State() ConnState {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

func (l *Listener) setState(s ConnState) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

// Run supervises the notification connection until ctx is cancelled. The loop
// itself survives every transient failure; connect errors only delay the next
// attempt.
func (l *Listener) Run(ctx context.Context) error {
	log.Info().
		Dur("reconnect_delay", l.cfg.ReconnectDelay).
		Int("channels", len(l.channels)).
		Msg("notification listener started")

	for {
		if ctx.Err() != nil {
			break
		}

		if l.State() == StateDisconnected {
			l.setState(StateConnecting)
			if err := l.connect(); err != nil {
				log.Error().Err(err).Msg("notification connect failed, will retry")
				l.setState(StateDisconnected)
				select {
				case <-ctx.Done():
				case <-time.After(l.cfg.ReconnectDelay):
				}
				continue
			}
			l.setState(StateConnected)
		}

		// Receive until the connection drops or shutdown.
		l.receive(ctx)
	}

	l.teardown()
	close(l.events)
	log.Info().Msg("notification listener shut down")
	return ctx.Err()
}

// connect establishes a fresh pq listener and registers every channel. Partial
// registration is tolerated as long as at least one channel succeeded; zero
// registered channels is a connect failure and triggers the reconnect path.
func (l *Listener) connect() error {
	l.teardown()

	pql := pq.NewListener(
		l.cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)

	registered := 0
	for _, ch := range l.channels {
		if err := pql.Listen(string(ch)); err != nil {
			log.Error().Err(err).Str("channel", string(ch)).Msg("failed to listen on channel")
			continue
		}
		registered++
	}
	if registered == 0 {
		pql.Close()
		return fmt.Errorf("failed to register any of %d channels", len(l.channels))
	}
	if registered < len(l.channels) {
		log.Warn().
			Int("registered", registered).
			Int("requested", len(l.channels)).
			Msg("partial channel registration, continuing")
	}

	l.pql = pql
	log.Info().Int("channels", registered).Msg("listening for notifications")
	return nil
}

// receive pumps notifications until the connection is lost or ctx is
// cancelled. Malformed payloads are logged and dropped; only a lost
// connection exits the loop.
func (l *Listener) receive(ctx context.Context) {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case note := <-l.pql.Notify:
			if note == nil {
				// nil notification means the connection was lost.
				log.Warn().Msg("notification connection lost, reconnecting")
				l.setState(StateDisconnected)
				return
			}
			ev, err := DecodeChangeEvent(Channel(note.Channel), note.Extra)
			if err != nil {
				log.Error().Err(err).Str("channel", note.Channel).Msg("dropping malformed notification")
				continue
			}
			select {
			case l.events <- ev:
			case <-ctx.Done():
				return
			}

		case <-pingTicker.C:
			if err := l.pql.Ping(); err != nil {
				log.Error().Err(err).Msg("notification ping failed, reconnecting")
				l.setState(StateDisconnected)
				return
			}
		}
	}
}

func (l *Listener) teardown() {
	if l.pql != nil {
		l.pql.Close()
		l.pql = nil
	}
}

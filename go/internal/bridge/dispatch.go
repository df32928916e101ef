package bridge

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Handler processes decoded change events for one channel. Handler errors are
// per-event and never stop the dispatch loop.
type Handler interface {
	Handle(ctx context.Context, ev ChangeEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev ChangeEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev ChangeEvent) error {
	return f(ctx, ev)
}

// Dispatcher consumes decoded events from the listener and routes each to the
// handler registered for its channel. A single consuming loop preserves the
// source delivery order within every channel.
type Dispatcher struct {
	events   <-chan ChangeEvent
	handlers map[Channel]Handler
}

// NewDispatcher creates a dispatcher over the listener's event stream.
func NewDispatcher(events <-chan ChangeEvent, handlers map[Channel]Handler) *Dispatcher {
	return &Dispatcher{
		events:   events,
		handlers: handlers,
	}
}

// Run dispatches events until ctx is cancelled or the event stream closes.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Int("handlers", len(d.handlers)).Msg("change dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("change dispatcher shutting down")
			return
		case ev, ok := <-d.events:
			if !ok {
				log.Info().Msg("event stream closed, dispatcher stopping")
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev ChangeEvent) {
	handler, ok := d.handlers[ev.Channel]
	if !ok {
		log.Warn().Str("channel", string(ev.Channel)).Msg("no handler registered for channel")
		return
	}

	if err := handler.Handle(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("channel", string(ev.Channel)).
			Int64("match_id", ev.MatchID).
			Msg("handler failed")
	}
}

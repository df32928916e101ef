package gameclock

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

// Registry owns every live clock in the process, keyed by match and kind.
// It is constructed once at startup and injected into whatever needs clocks;
// there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	clocks map[key]*Clock
	clock  clockwork.Clock
}

type key struct {
	matchID int64
	kind    Kind
}

// NewRegistry creates an empty registry using clk as the shared time source.
func NewRegistry(clk clockwork.Clock) *Registry {
	return &Registry{
		clocks: make(map[key]*Clock),
		clock:  clk,
	}
}

// Get returns the clock for a match, or nil if none is registered.
func (r *Registry) Get(matchID int64, kind Kind) *Clock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clocks[key{matchID, kind}]
}

// GetOrCreate returns the registered clock, creating a stopped one with the
// given defaults if the match has none yet.
func (r *Registry) GetOrCreate(matchID int64, kind Kind, value, maxValue int64, direction Direction) *Clock {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{matchID, kind}
	if c, ok := r.clocks[k]; ok {
		return c
	}
	c := New(matchID, kind, value, maxValue, direction, r.clock)
	r.clocks[k] = c
	return c
}

// Put registers a restored clock, replacing any existing entry.
func (r *Registry) Put(c *Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clocks[key{c.MatchID, c.Kind}] = c
}

// Remove drops a match's clock, typically when the match finishes.
func (r *Registry) Remove(matchID int64, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clocks, key{matchID, kind})
}

// Running returns a snapshot of every clock currently in the running state.
func (r *Registry) Running() []*Clock {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Clock
	for _, c := range r.clocks {
		if c.CurrentStatus() == StatusRunning {
			out = append(out, c)
		}
	}
	return out
}

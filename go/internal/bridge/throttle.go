package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// StatsGate decides whether a derived-statistics broadcast for a match may go
// out now. The in-process Throttle is the single-instance implementation; a
// storage-backed gate serves deployments where several instances race to
// recompute.
type StatsGate interface {
	AllowStats(ctx context.Context, matchID int64) bool
}

// Throttle enforces a minimum interval between derived-statistics broadcasts
// per match. Only the heavy recomputed stats stream is throttled; clock and
// event channels always broadcast immediately, since rate-limiting those
// would visibly delay the scoreboard.
type Throttle struct {
	mu       sync.Mutex
	last     map[int64]time.Time
	interval time.Duration
	clock    clockwork.Clock
}

// NewThrottle creates a throttle with the given per-match minimum interval.
func NewThrottle(interval time.Duration, clk clockwork.Clock) *Throttle {
	return &Throttle{
		last:     make(map[int64]time.Time),
		interval: interval,
		clock:    clk,
	}
}

// AllowStats implements StatsGate.
func (t *Throttle) AllowStats(_ context.Context, matchID int64) bool {
	return t.Allow(matchID)
}

// Allow reports whether a stats broadcast for the match may go out now, and
// if so stamps the match's last-notified time.
func (t *Throttle) Allow(matchID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, ok := t.last[matchID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[matchID] = now
	return true
}

// Forget drops a match's throttle record, typically when the match finishes.
func (t *Throttle) Forget(matchID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, matchID)
}

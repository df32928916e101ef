package gameclock

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Status defines the lifecycle status of a clock.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// Direction defines whether a clock counts down to zero or up to its ceiling.
type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

// Kind distinguishes the two clock instances a match carries.
type Kind string

const (
	KindPlayClock Kind = "playclock"
	KindGameClock Kind = "gameclock"
)

// Clock is a drift-corrected countdown/count-up timer. The displayed value is
// derived from elapsed wall-clock time since the last transition, never from
// accumulated per-tick decrements, so correctness does not depend on tick
// cadence. Invariant: StartedAt is non-nil iff Status == StatusRunning.
type Clock struct {
	MatchID int64
	Kind    Kind

	mu         sync.Mutex
	value      int64 // seconds at the last transition
	status     Status
	startedAt  *time.Time
	direction  Direction
	maxValue   int64
	lastSyncAt time.Time

	clock clockwork.Clock
}

// New creates a clock frozen at value seconds.
func New(matchID int64, kind Kind, value, maxValue int64, direction Direction, clk clockwork.Clock) *Clock {
	return &Clock{
		MatchID:    matchID,
		Kind:       kind,
		value:      value,
		status:     StatusStopped,
		direction:  direction,
		maxValue:   maxValue,
		lastSyncAt: clk.Now(),
		clock:      clk,
	}
}

// Start transitions the clock to running. A start on an already-running clock
// re-stamps StartedAt from the current computed value rather than failing.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = c.currentValueLocked()
	now := c.clock.Now()
	c.startedAt = &now
	c.status = StatusRunning
}

// StartAt transitions the clock to running with elapsed time measured from
// startedAt instead of now. Applying a committed transition this way keeps
// the commit-to-apply latency out of the displayed value.
func (c *Clock) StartAt(startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startedAt = &startedAt
	c.status = StatusRunning
}

// Stop freezes the clock at its current computed value. Safe to call twice;
// the second call leaves the value unchanged.
func (c *Clock) Stop() {
	c.freeze(StatusStopped)
}

// Pause freezes the clock like Stop but records that the halt was intentional
// rather than a period ending.
func (c *Clock) Pause() {
	c.freeze(StatusPaused)
}

func (c *Clock) freeze(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = c.currentValueLocked()
	c.startedAt = nil
	c.status = status
}

// CurrentValue returns the unique correct value derivable from the clock state
// and the current wall time. Always within [0, maxValue].
func (c *Clock) CurrentValue() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentValueLocked()
}

func (c *Clock) currentValueLocked() int64 {
	if c.status != StatusRunning || c.startedAt == nil {
		return c.value
	}
	elapsed := int64(c.clock.Since(*c.startedAt) / time.Second)
	if c.direction == DirectionDown {
		v := c.value - elapsed
		if v < 0 {
			return 0
		}
		return v
	}
	v := c.value + elapsed
	if v > c.maxValue {
		return c.maxValue
	}
	return v
}

// CurrentStatus returns the current lifecycle status.
func (c *Clock) CurrentStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetValue overwrites the frozen value, clamped to [0, maxValue]. Used when an
// operator corrects the clock from the console.
func (c *Clock) SetValue(value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value < 0 {
		value = 0
	}
	if value > c.maxValue {
		value = c.maxValue
	}
	c.value = value
	if c.status == StatusRunning {
		now := c.clock.Now()
		c.startedAt = &now
	}
}

// NeedsDBSync reports whether the last persistence is older than interval.
// A periodic driver uses it to bound staleness for viewers that missed a
// transition event.
func (c *Clock) NeedsDBSync(interval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Since(c.lastSyncAt) >= interval
}

// MarkDBSynced records a successful persistence.
func (c *Clock) MarkDBSynced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSyncAt = c.clock.Now()
}

// Snapshot returns the wire view of the clock. For a running clock the
// computed value is paired with the snapshot instant, so restoring the pair
// re-derives only the time elapsed after the snapshot was taken.
func (c *Clock) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		MatchID:   c.MatchID,
		Kind:      c.Kind,
		Value:     c.currentValueLocked(),
		Status:    c.status,
		Direction: c.direction,
		MaxValue:  c.maxValue,
	}
	if c.status == StatusRunning {
		now := c.clock.Now()
		s.StartedAt = &now
	}
	return s
}

// State is the serializable view of a clock used for persistence and
// broadcast payloads.
type State struct {
	MatchID   int64      `json:"match_id"`
	Kind      Kind       `json:"kind"`
	Value     int64      `json:"value"`
	Status    Status     `json:"status"`
	Direction Direction  `json:"direction"`
	MaxValue  int64      `json:"max_value"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Restore rebuilds a clock from a persisted state, re-deriving the running
// value from StartedAt so a process restart does not lose elapsed time.
func Restore(s State, clk clockwork.Clock) (*Clock, error) {
	switch s.Status {
	case StatusStopped, StatusRunning, StatusPaused:
	default:
		return nil, fmt.Errorf("unknown clock status %q", s.Status)
	}
	if s.Status == StatusRunning && s.StartedAt == nil {
		return nil, fmt.Errorf("running clock for match %d has no started_at", s.MatchID)
	}

	c := New(s.MatchID, s.Kind, s.Value, s.MaxValue, s.Direction, clk)
	c.status = s.Status
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.startedAt = &t
	}
	return c, nil
}

package gameclock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockCountdown(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 100, 100, DirectionDown, clk)
	assert.Equal(int64(100), c.CurrentValue())
	assert.Equal(StatusStopped, c.CurrentStatus())

	c.Start()
	clk.Advance(3 * time.Second)
	assert.Equal(int64(97), c.CurrentValue())

	c.Stop()
	assert.Equal(int64(97), c.CurrentValue())
	clk.Advance(10 * time.Second)
	assert.Equal(int64(97), c.CurrentValue(), "stopped clock must not move")
}

func TestClockNeverNegative(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindPlayClock, 2, 40, DirectionDown, clk)
	c.Start()
	clk.Advance(5 * time.Second)
	assert.Equal(int64(0), c.CurrentValue())

	clk.Advance(time.Hour)
	assert.Equal(int64(0), c.CurrentValue())
}

func TestClockCountUpClampsAtMax(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 0, 10, DirectionUp, clk)
	c.Start()
	clk.Advance(4 * time.Second)
	assert.Equal(int64(4), c.CurrentValue())

	clk.Advance(time.Minute)
	assert.Equal(int64(10), c.CurrentValue())
}

func TestClockStopIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 100, 100, DirectionDown, clk)
	c.Start()
	clk.Advance(5 * time.Second)

	c.Stop()
	first := c.CurrentValue()
	clk.Advance(3 * time.Second)
	c.Stop()
	assert.Equal(first, c.CurrentValue())
}

func TestClockPauseFreezesLikeStop(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 60, 60, DirectionDown, clk)
	c.Start()
	clk.Advance(10 * time.Second)
	c.Pause()

	assert.Equal(StatusPaused, c.CurrentStatus())
	assert.Equal(int64(50), c.CurrentValue())
	clk.Advance(time.Minute)
	assert.Equal(int64(50), c.CurrentValue())
}

func TestClockRepeatedStartRestamps(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 100, 100, DirectionDown, clk)
	c.Start()
	clk.Advance(3 * time.Second)
	c.Start()
	clk.Advance(2 * time.Second)
	assert.Equal(int64(95), c.CurrentValue(), "elapsed time before the restart still counts")
}

func TestClockSetValueClamps(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 50, 60, DirectionDown, clk)
	c.SetValue(900)
	assert.Equal(int64(60), c.CurrentValue())
	c.SetValue(-5)
	assert.Equal(int64(0), c.CurrentValue())
}

func TestClockNeedsDBSync(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 100, 100, DirectionDown, clk)
	c.MarkDBSynced()
	assert.False(c.NeedsDBSync(5*time.Second))

	clk.Advance(5 * time.Second)
	assert.True(c.NeedsDBSync(5*time.Second))

	c.MarkDBSynced()
	assert.False(c.NeedsDBSync(5*time.Second))
}

func TestClockRestore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	clk := clockwork.NewFakeClock()

	started := clk.Now().Add(-10 * time.Second)
	c, err := Restore(State{
		MatchID:   7,
		Kind:      KindGameClock,
		Value:     100,
		Status:    StatusRunning,
		Direction: DirectionDown,
		MaxValue:  100,
		StartedAt: &started,
	}, clk)
	require.NoError(err)

	assert.Equal(StatusRunning, c.CurrentStatus())
	assert.Equal(int64(90), c.CurrentValue(), "time elapsed before the restore counts")

	_, err = Restore(State{MatchID: 7, Status: StatusRunning}, clk)
	assert.Error(err, "running clock without started_at is invalid")

	_, err = Restore(State{MatchID: 7, Status: "melted"}, clk)
	assert.Error(err)
}

func TestClockSnapshotRestoreRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 100, 100, DirectionDown, clk)
	c.Start()
	clk.Advance(10 * time.Second)

	snap := c.Snapshot()
	assert.Equal(int64(90), snap.Value)
	require.NotNil(snap.StartedAt)
	assert.Equal(clk.Now(), *snap.StartedAt, "running snapshot pairs the computed value with the snapshot instant")

	restored, err := Restore(snap, clk)
	require.NoError(err)
	assert.Equal(int64(90), restored.CurrentValue(), "restoring a fresh snapshot must not subtract elapsed time again")

	clk.Advance(5 * time.Second)
	assert.Equal(int64(85), restored.CurrentValue())
	assert.Equal(c.CurrentValue(), restored.CurrentValue(), "restored clock tracks the original")
}

func TestClockSnapshotFrozenHasNoStartedAt(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindPlayClock, 40, 40, DirectionDown, clk)
	c.Start()
	clk.Advance(3 * time.Second)
	c.Pause()

	snap := c.Snapshot()
	assert.Equal(int64(37), snap.Value)
	assert.Nil(snap.StartedAt)
}

func TestClockStartAtCountsFromTransition(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	c := New(7, KindGameClock, 720, 720, DirectionDown, clk)
	c.SetValue(720)
	c.StartAt(clk.Now().Add(-3 * time.Second))
	assert.Equal(StatusRunning, c.CurrentStatus())
	assert.Equal(int64(717), c.CurrentValue(), "time elapsed since the transition instant counts immediately")

	clk.Advance(2 * time.Second)
	assert.Equal(int64(715), c.CurrentValue())
}

func TestRegistryRunning(t *testing.T) {
	assert := assert.New(t)
	clk := clockwork.NewFakeClock()

	r := NewRegistry(clk)
	game := r.GetOrCreate(1, KindGameClock, 720, 720, DirectionDown)
	r.GetOrCreate(1, KindPlayClock, 40, 40, DirectionDown)

	assert.Empty(r.Running())
	game.Start()
	assert.Len(r.Running(), 1)

	assert.Same(game, r.Get(1, KindGameClock))
	r.Remove(1, KindGameClock)
	assert.Nil(r.Get(1, KindGameClock))
}

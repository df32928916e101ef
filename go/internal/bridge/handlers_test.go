package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpulse/livesync/go/internal/cache"
	"github.com/matchpulse/livesync/go/internal/gameclock"
	"github.com/matchpulse/livesync/go/internal/models"
)

type fakeStore struct {
	match      *models.Match
	players    []models.Player
	events     []models.PlayEvent
	stats      *models.MatchStats
	err        error
	matchGets  int
	eventGets  int
	playerGets int
	statsGets  int
}

func (s *fakeStore) GetMatch(_ context.Context, matchID int64) (*models.Match, error) {
	s.matchGets++
	return s.match, s.err
}

func (s *fakeStore) ListPlayers(_ context.Context, matchID int64) ([]models.Player, error) {
	s.playerGets++
	return s.players, s.err
}

func (s *fakeStore) ListEvents(_ context.Context, matchID int64) ([]models.PlayEvent, error) {
	s.eventGets++
	return s.events, s.err
}

func (s *fakeStore) ComputeMatchStats(_ context.Context, matchID int64) (*models.MatchStats, error) {
	s.statsGets++
	return s.stats, s.err
}

type invalidation struct {
	matchID int64
	kind    cache.Kind
}

type fakeInvalidator struct {
	calls []invalidation
}

func (f *fakeInvalidator) Invalidate(matchID int64, kind cache.Kind) {
	f.calls = append(f.calls, invalidation{matchID, kind})
}

type capturedBroadcast struct {
	matchID int64
	payload map[string]any
}

type captureBroadcaster struct {
	calls []capturedBroadcast
}

func (b *captureBroadcaster) Broadcast(matchID int64, payload any) {
	b.calls = append(b.calls, capturedBroadcast{matchID, payload.(map[string]any)})
}

type fakeAcceptor struct {
	accepted []int64
}

func (f *fakeAcceptor) AcceptServer(matchID int64, _ *models.MatchStats) {
	f.accepted = append(f.accepted, matchID)
}

type handlerFixture struct {
	store       *fakeStore
	invalidator *fakeInvalidator
	broadcaster *captureBroadcaster
	acceptor    *fakeAcceptor
	clocks      *gameclock.Registry
	clk         *clockwork.FakeClock
	handlers    map[Channel]Handler
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		store:       &fakeStore{stats: &models.MatchStats{MatchID: 7}},
		invalidator: &fakeInvalidator{},
		broadcaster: &captureBroadcaster{},
		acceptor:    &fakeAcceptor{},
		clk:         clockwork.NewFakeClock(),
	}
	f.clocks = gameclock.NewRegistry(f.clk)
	f.handlers = NewHandlers(Deps{
		Store:       f.store,
		Cache:       f.invalidator,
		Broadcaster: f.broadcaster,
		Clocks:      f.clocks,
		Stats:       f.acceptor,
		Throttle:    NewThrottle(10*time.Second, f.clk),
	})
	return f
}

func TestEveryChannelHasAHandler(t *testing.T) {
	f := newFixture()
	for _, ch := range AllChannels() {
		assert.Contains(t, f.handlers, ch)
	}
}

func TestMatchHandlerUsesRowImage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	ev, err := DecodeChangeEvent(ChannelMatch, `{"table":"matches","operation":"update","match_id":7,"data":{"id":7,"home_score":14,"away_score":3}}`)
	require.NoError(err)
	require.NoError(f.handlers[ChannelMatch].Handle(context.Background(), ev))

	assert.Zero(f.store.matchGets, "full row image means no re-fetch")
	assert.Equal([]invalidation{{7, cache.KindMatchData}}, f.invalidator.calls)

	require.Len(f.broadcaster.calls, 1)
	call := f.broadcaster.calls[0]
	assert.Equal(int64(7), call.matchID)
	assert.Equal("match", call.payload["type"])
	match := call.payload["match"].(*models.Match)
	assert.Equal(14, match.HomeScore)
}

func TestMatchHandlerRefetchesWithoutRowImage(t *testing.T) {
	require := require.New(t)
	f := newFixture()
	f.store.match = &models.Match{ID: 7}

	ev := ChangeEvent{Channel: ChannelMatch, Operation: OpUpdate, MatchID: 7}
	require.NoError(f.handlers[ChannelMatch].Handle(context.Background(), ev))
	require.Equal(1, f.store.matchGets)
}

func TestEventHandlerBroadcastsAndRecomputesStats(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()
	f.store.events = []models.PlayEvent{{ID: 1, MatchID: 7, EventNumber: 1}}

	ev := ChangeEvent{Channel: ChannelEvent, Operation: OpInsert, MatchID: 7}
	require.NoError(f.handlers[ChannelEvent].Handle(context.Background(), ev))

	require.Len(f.broadcaster.calls, 1)
	assert.Equal("events", f.broadcaster.calls[0].payload["type"])
	assert.Contains(f.broadcaster.calls[0].payload, "events")

	assert.Equal([]int64{7}, f.acceptor.accepted, "event change triggers a derived stats push")
	assert.Equal([]invalidation{
		{7, cache.KindEventData},
		{7, cache.KindStats},
	}, f.invalidator.calls)
}

func TestEventHandlerThrottlesStatsOnly(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	ev := ChangeEvent{Channel: ChannelEvent, Operation: OpInsert, MatchID: 7}
	require.NoError(f.handlers[ChannelEvent].Handle(context.Background(), ev))
	require.NoError(f.handlers[ChannelEvent].Handle(context.Background(), ev))

	assert.Len(f.broadcaster.calls, 2, "event broadcasts are never throttled")
	assert.Len(f.acceptor.accepted, 1, "stats recompute is throttled")

	f.clk.Advance(10 * time.Second)
	require.NoError(f.handlers[ChannelEvent].Handle(context.Background(), ev))
	assert.Len(f.acceptor.accepted, 2)
}

func TestPlayerHandler(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()
	f.store.players = []models.Player{{ID: 1, MatchID: 7, Name: "J. Smith"}}

	ev := ChangeEvent{Channel: ChannelPlayer, Operation: OpUpdate, MatchID: 7}
	require.NoError(f.handlers[ChannelPlayer].Handle(context.Background(), ev))

	require.Len(f.broadcaster.calls, 1)
	assert.Equal("players", f.broadcaster.calls[0].payload["type"])
	assert.Equal([]invalidation{{7, cache.KindPlayers}}, f.invalidator.calls)
}

func TestClockHandlerStartsClockFromRowImage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	ev, err := DecodeChangeEvent(ChannelGameClock,
		`{"table":"match_clocks","operation":"update","match_id":7,"data":{"value":720,"max_value":720,"direction":"down","status":"running"}}`)
	require.NoError(err)
	require.NoError(f.handlers[ChannelGameClock].Handle(context.Background(), ev))

	c := f.clocks.Get(7, gameclock.KindGameClock)
	require.NotNil(c)
	assert.Equal(gameclock.StatusRunning, c.CurrentStatus())

	f.clk.Advance(3 * time.Second)
	assert.Equal(int64(717), c.CurrentValue())

	require.Len(f.broadcaster.calls, 1)
	assert.Equal("gameclock", f.broadcaster.calls[0].payload["type"])
	assert.Contains(f.broadcaster.calls[0].payload, "gameclock")
}

func TestClockHandlerHonorsRowTransitionInstant(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	startedAt := f.clk.Now().Add(-3 * time.Second).Format(time.RFC3339Nano)
	raw := fmt.Sprintf(`{"table":"match_clocks","operation":"update","match_id":7,"data":{"value":720,"max_value":720,"direction":"down","status":"running","started_at":%q}}`, startedAt)
	ev, err := DecodeChangeEvent(ChannelGameClock, raw)
	require.NoError(err)
	require.NoError(f.handlers[ChannelGameClock].Handle(context.Background(), ev))

	c := f.clocks.Get(7, gameclock.KindGameClock)
	require.NotNil(c)
	assert.Equal(int64(717), c.CurrentValue(), "time between the commit and the handler counts immediately")

	// Re-applying the same committed pair later must not shift the timeline.
	f.clk.Advance(5 * time.Second)
	require.NoError(f.handlers[ChannelGameClock].Handle(context.Background(), ev))
	assert.Equal(int64(712), c.CurrentValue())
}

func TestClockHandlerStopFreezesValue(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	start, err := DecodeChangeEvent(ChannelPlayClock,
		`{"table":"match_clocks","operation":"update","match_id":7,"data":{"value":40,"max_value":40,"direction":"down","status":"running"}}`)
	require.NoError(err)
	require.NoError(f.handlers[ChannelPlayClock].Handle(context.Background(), start))

	f.clk.Advance(15 * time.Second)

	stop, err := DecodeChangeEvent(ChannelPlayClock,
		`{"table":"match_clocks","operation":"update","match_id":7,"data":{"status":"stopped"}}`)
	require.NoError(err)
	require.NoError(f.handlers[ChannelPlayClock].Handle(context.Background(), stop))

	c := f.clocks.Get(7, gameclock.KindPlayClock)
	assert.Equal(gameclock.StatusStopped, c.CurrentStatus())
	assert.Equal(int64(25), c.CurrentValue())
}

func TestClockHandlerDeleteRemovesClock(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()
	f.clocks.GetOrCreate(7, gameclock.KindGameClock, 720, 720, gameclock.DirectionDown)

	ev := ChangeEvent{Channel: ChannelGameClock, Operation: OpDelete, MatchID: 7}
	require.NoError(f.handlers[ChannelGameClock].Handle(context.Background(), ev))

	assert.Nil(f.clocks.Get(7, gameclock.KindGameClock))
	require.Len(f.broadcaster.calls, 1)
	assert.Nil(f.broadcaster.calls[0].payload["gameclock"])
}

func TestStatsHandlerFeedsResolver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture()

	ev := ChangeEvent{Channel: ChannelStats, Operation: OpUpdate, MatchID: 7}
	require.NoError(f.handlers[ChannelStats].Handle(context.Background(), ev))

	assert.Equal([]int64{7}, f.acceptor.accepted)
	assert.Equal([]invalidation{{7, cache.KindStats}}, f.invalidator.calls)
}

func TestHandlersPropagateStoreErrors(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	f.store.err = errors.New("db down")

	for _, ch := range []Channel{ChannelMatch, ChannelEvent, ChannelPlayer, ChannelStats} {
		ev := ChangeEvent{Channel: ch, Operation: OpUpdate, MatchID: 7}
		assert.Error(f.handlers[ch].Handle(context.Background(), ev), string(ch))
	}
}

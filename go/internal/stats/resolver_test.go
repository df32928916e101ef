package stats

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpulse/livesync/go/internal/models"
)

type fanoutCall struct {
	kind     string // "broadcast", "except", "direct"
	matchID  int64
	clientID string
	payload  map[string]any
}

type recordingFanout struct {
	calls        []fanoutCall
	disconnected []string
}

func (f *recordingFanout) record(kind string, matchID int64, clientID string, payload any) {
	data, _ := json.Marshal(payload)
	var m map[string]any
	json.Unmarshal(data, &m)
	f.calls = append(f.calls, fanoutCall{kind: kind, matchID: matchID, clientID: clientID, payload: m})
}

func (f *recordingFanout) Broadcast(matchID int64, payload any) {
	f.record("broadcast", matchID, "", payload)
}

func (f *recordingFanout) BroadcastExcept(matchID int64, exceptClientID string, payload any) {
	f.record("except", matchID, exceptClientID, payload)
}

func (f *recordingFanout) SendTo(clientID string, payload any) {
	f.record("direct", 0, clientID, payload)
}

func (f *recordingFanout) Disconnect(clientID string) {
	f.disconnected = append(f.disconnected, clientID)
}

func clientUpdate(ts time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"stats_update","timestamp":%q,"stats":{"teams":{"1":{"offence_yards":120}}}}`,
		ts.Format(time.RFC3339),
	))
}

func TestNewerClientCandidateAccepted(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.AcceptServer(7, &models.MatchStats{MatchID: 7})
	require.Len(fanout.calls, 1)
	assert.Equal("broadcast", fanout.calls[0].kind)
	assert.Equal("stats_update", fanout.calls[0].payload["type"])

	r.HandleClientMessage("client-a", 7, clientUpdate(clk.Now().Add(time.Second)))
	require.Len(fanout.calls, 2)
	call := fanout.calls[1]
	assert.Equal("except", call.kind)
	assert.Equal("client-a", call.clientID, "originator excluded from the re-broadcast")
	assert.Equal(int64(7), call.matchID)
	assert.Equal("stats_update", call.payload["type"])
}

func TestStaleClientCandidateGetsSyncReply(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.AcceptServer(7, &models.MatchStats{MatchID: 7})

	r.HandleClientMessage("client-a", 7, clientUpdate(clk.Now().Add(-time.Minute)))
	require.Len(fanout.calls, 2)
	call := fanout.calls[1]
	assert.Equal("direct", call.kind, "stale candidate reconciles the originator only")
	assert.Equal("client-a", call.clientID)
	assert.Equal("stats_sync", call.payload["type"])
	assert.Contains(call.payload, "server_timestamp")
}

func TestEqualTimestampIsStale(t *testing.T) {
	assert := assert.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.AcceptServer(7, &models.MatchStats{MatchID: 7})
	r.HandleClientMessage("client-a", 7, clientUpdate(clk.Now()))

	assert.Equal("direct", fanout.calls[1].kind)
}

func TestMalformedMessagesDroppedSilently(t *testing.T) {
	assert := assert.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.HandleClientMessage("client-a", 7, []byte(`not json`))
	r.HandleClientMessage("client-a", 7, []byte(`{"type":"stats_update","stats":{"x":1}}`))
	r.HandleClientMessage("client-a", 7, []byte(`{"type":"stats_update","timestamp":"yesterday","stats":{"x":1}}`))
	r.HandleClientMessage("client-a", 7, []byte(`{"type":"stats_update","timestamp":"2026-01-01T00:00:00Z"}`))
	r.HandleClientMessage("client-a", 7, []byte(`{"type":"mystery"}`))

	assert.Empty(fanout.calls, "malformed input never produces traffic")
}

func TestClientCandidateBecomesAuthoritative(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	accepted := clk.Now().Add(time.Second)
	r.HandleClientMessage("client-a", 7, clientUpdate(accepted))
	require.Len(fanout.calls, 1)

	// A second client racing with an older snapshot loses to the first.
	r.HandleClientMessage("client-b", 7, clientUpdate(accepted.Add(-time.Second)))
	require.Len(fanout.calls, 2)
	assert.Equal("direct", fanout.calls[1].kind)
	assert.Equal("client-b", fanout.calls[1].clientID)
}

func TestDisconnectMessage(t *testing.T) {
	assert := assert.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.HandleClientMessage("client-a", 7, []byte(`{"type":"disconnect"}`))
	assert.Equal([]string{"client-a"}, fanout.disconnected)
}

func TestForget(t *testing.T) {
	assert := assert.New(t)
	fanout := &recordingFanout{}
	clk := clockwork.NewFakeClock()
	r := NewResolver(fanout, fanout, clk)

	r.AcceptServer(7, &models.MatchStats{MatchID: 7})
	r.Forget(7)

	// After Forget, any parsable candidate wins again.
	r.HandleClientMessage("client-a", 7, clientUpdate(clk.Now().Add(-time.Hour)))
	assert.Equal("except", fanout.calls[len(fanout.calls)-1].kind)
}

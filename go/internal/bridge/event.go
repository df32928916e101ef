package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Channel identifies one database notification channel. The set is closed;
// dispatch is by typed tag, not by free-form string lookup.
type Channel string

const (
	ChannelMatch     Channel = "match_change"
	ChannelEvent     Channel = "event_change"
	ChannelPlayer    Channel = "player_change"
	ChannelPlayClock Channel = "playclock_change"
	ChannelGameClock Channel = "gameclock_change"
	ChannelStats     Channel = "stats_change"
)

// AllChannels lists every channel the listener subscribes to.
func AllChannels() []Channel {
	return []Channel{
		ChannelMatch,
		ChannelEvent,
		ChannelPlayer,
		ChannelPlayClock,
		ChannelGameClock,
		ChannelStats,
	}
}

// Operation is the row-level mutation kind carried by a change event.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent is a decoded database notification. Events are ephemeral and
// routable by MatchID alone; Data optionally carries the full row image when
// the emitting trigger includes one, otherwise handlers re-fetch through the
// store.
type ChangeEvent struct {
	Channel   Channel         `json:"-"`
	Table     string          `json:"table"`
	Operation Operation       `json:"operation"`
	MatchID   int64           `json:"match_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeChangeEvent parses a raw NOTIFY payload. Empty or unparsable payloads
// are rejected with an error; the caller logs and drops them without ever
// taking down the listener.
func DecodeChangeEvent(channel Channel, payload string) (ChangeEvent, error) {
	var ev ChangeEvent
	if strings.TrimSpace(payload) == "" {
		return ev, fmt.Errorf("empty payload on channel %s", channel)
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("unparsable payload on channel %s: %w", channel, err)
	}
	if ev.MatchID == 0 {
		return ev, fmt.Errorf("payload on channel %s has no match_id", channel)
	}

	switch ev.Operation {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return ev, fmt.Errorf("unknown operation %q on channel %s", ev.Operation, channel)
	}

	ev.Channel = channel
	return ev, nil
}

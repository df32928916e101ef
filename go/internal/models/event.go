package models

// PlayType defines the kind of football play recorded for a match.
type PlayType string

const (
	PlayTypeRun      PlayType = "RUN"
	PlayTypePass     PlayType = "PASS"
	PlayTypeKick     PlayType = "KICK"
	PlayTypePunt     PlayType = "PUNT"
	PlayTypeKickoff  PlayType = "KICKOFF"
	PlayTypeTurnover PlayType = "TURNOVER"
	PlayTypePenalty  PlayType = "PENALTY"
)

// PlayResult defines the scoring outcome of a play, if any.
type PlayResult string

const (
	PlayResultTouchdown  PlayResult = "TD"
	PlayResultFieldGoal  PlayResult = "FG"
	PlayResultSafety     PlayResult = "SAFETY"
	PlayResultTwoPoint   PlayResult = "TWO_POINT"
	PlayResultExtraPoint PlayResult = "PAT"
	PlayResultNone       PlayResult = "NONE"
)

// PlayEvent is one play-by-play entry for a match.
type PlayEvent struct {
	ID           int64      `json:"id"`
	MatchID      int64      `json:"match_id"`
	EventNumber  int        `json:"event_number"`
	Quarter      string     `json:"qtr"`
	Down         *int       `json:"down,omitempty"`
	Distance     *int       `json:"distance,omitempty"`
	BallOn       *int       `json:"ball_on,omitempty"`
	OffenseTeam  *int64     `json:"offense_team,omitempty"`
	PlayType     PlayType   `json:"play_type"`
	PlayResult   PlayResult `json:"play_result"`
	GainedYards  *int       `json:"gained_yards,omitempty"`
	IsFumble     bool       `json:"is_fumble"`
	IsQBSack     bool       `json:"is_qb_sack"`
}

// Player represents a roster entry shown in match overlays.
type Player struct {
	ID       int64   `json:"id"`
	MatchID  int64   `json:"match_id"`
	TeamID   int64   `json:"team_id"`
	Number   string  `json:"match_number"`
	Name     string  `json:"full_name"`
	Position *string `json:"position,omitempty"`
	IsActive bool    `json:"is_active"`
}

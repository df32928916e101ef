package models

import (
	"time"
)

// MatchStatus defines the lifecycle status of a match.
type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "SCHEDULED"
	MatchStatusInProgress MatchStatus = "IN_PROGRESS"
	MatchStatusFinished   MatchStatus = "FINISHED"
	MatchStatusCancelled  MatchStatus = "CANCELLED"
)

// Match represents a single scheduled or in-progress game.
type Match struct {
	ID           int64       `json:"id"`
	TournamentID int64       `json:"tournament_id"`
	HomeTeam     MatchTeam   `json:"home_team"`
	AwayTeam     MatchTeam   `json:"away_team"`
	HomeScore    int         `json:"home_score"`
	AwayScore    int         `json:"away_score"`
	Quarter      string      `json:"qtr"`
	Down         *int        `json:"down,omitempty"`
	Distance     *int        `json:"distance,omitempty"`
	Status       MatchStatus `json:"status"`
	StartAt      *time.Time  `json:"match_date,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// MatchTeam is the team view embedded in match payloads.
type MatchTeam struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
	Logo  string `json:"logo_url,omitempty"`
}

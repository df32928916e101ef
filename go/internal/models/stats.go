package models

// TeamStats aggregates per-team offensive statistics derived from play events.
type TeamStats struct {
	TeamID         int64 `json:"team_id"`
	OffenseYards   int   `json:"offence_yards"`
	PassYards      int   `json:"pass_yards"`
	RunYards       int   `json:"run_yards"`
	PassAttempts   int   `json:"pass_att"`
	PassCompleted  int   `json:"pass_cmp"`
	RunAttempts    int   `json:"run_att"`
	Turnovers      int   `json:"turnovers"`
	ThirdDownAtt   int   `json:"third_down_att"`
	ThirdDownConv  int   `json:"third_down_conv"`
	FirstDowns     int   `json:"first_downs"`
}

// MatchStats is the full statistics snapshot broadcast to viewers. Snapshots
// are whole-document replacements, never diffs.
type MatchStats struct {
	MatchID int64                `json:"match_id"`
	Teams   map[string]TeamStats `json:"teams"`
}

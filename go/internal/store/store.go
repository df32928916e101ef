package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/matchpulse/livesync/go/internal/gameclock"
	"github.com/matchpulse/livesync/go/internal/models"
)

// Store is the read/write surface the realtime subsystem needs from Postgres:
// re-fetching entity views for notifications that carry only identifiers,
// persisting clock state, and claiming the per-match stats notification
// throttle window.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports database connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetMatch fetches the scoreboard view of one match.
func (s *Store) GetMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	const q = `
		SELECT m.id, m.tournament_id,
		       ht.id, ht.title, ht.color, ht.logo_url,
		       at.id, at.title, at.color, at.logo_url,
		       m.home_score, m.away_score, m.qtr, m.down, m.distance,
		       m.status, m.match_date, m.updated_at
		FROM matches m
		JOIN teams ht ON ht.id = m.home_team_id
		JOIN teams at ON at.id = m.away_team_id
		WHERE m.id = $1`

	var m models.Match
	err := s.pool.QueryRow(ctx, q, matchID).Scan(
		&m.ID, &m.TournamentID,
		&m.HomeTeam.ID, &m.HomeTeam.Title, &m.HomeTeam.Color, &m.HomeTeam.Logo,
		&m.AwayTeam.ID, &m.AwayTeam.Title, &m.AwayTeam.Color, &m.AwayTeam.Logo,
		&m.HomeScore, &m.AwayScore, &m.Quarter, &m.Down, &m.Distance,
		&m.Status, &m.StartAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query match %d: %w", matchID, err)
	}
	return &m, nil
}

// ListPlayers fetches the active roster entries for a match.
func (s *Store) ListPlayers(ctx context.Context, matchID int64) ([]models.Player, error) {
	const q = `
		SELECT id, match_id, team_id, match_number, full_name, position, is_active
		FROM match_players
		WHERE match_id = $1
		ORDER BY team_id, match_number`

	rows, err := s.pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("query players for match %d: %w", matchID, err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.MatchID, &p.TeamID, &p.Number, &p.Name, &p.Position, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListEvents fetches the full ordered play-by-play list for a match.
func (s *Store) ListEvents(ctx context.Context, matchID int64) ([]models.PlayEvent, error) {
	const q = `
		SELECT id, match_id, event_number, qtr, down, distance, ball_on,
		       offense_team, play_type, play_result, gained_yards,
		       is_fumble, is_qb_sack
		FROM football_events
		WHERE match_id = $1
		ORDER BY event_number`

	rows, err := s.pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("query events for match %d: %w", matchID, err)
	}
	defer rows.Close()

	var events []models.PlayEvent
	for rows.Next() {
		var e models.PlayEvent
		if err := rows.Scan(
			&e.ID, &e.MatchID, &e.EventNumber, &e.Quarter, &e.Down, &e.Distance, &e.BallOn,
			&e.OffenseTeam, &e.PlayType, &e.PlayResult, &e.GainedYards,
			&e.IsFumble, &e.IsQBSack,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ComputeMatchStats aggregates the authoritative statistics snapshot from the
// canonical play events.
func (s *Store) ComputeMatchStats(ctx context.Context, matchID int64) (*models.MatchStats, error) {
	const q = `
		SELECT offense_team,
		       COALESCE(SUM(gained_yards), 0),
		       COALESCE(SUM(gained_yards) FILTER (WHERE play_type = 'PASS'), 0),
		       COALESCE(SUM(gained_yards) FILTER (WHERE play_type = 'RUN'), 0),
		       COUNT(*) FILTER (WHERE play_type = 'PASS'),
		       COUNT(*) FILTER (WHERE play_type = 'PASS' AND gained_yards > 0),
		       COUNT(*) FILTER (WHERE play_type = 'RUN'),
		       COUNT(*) FILTER (WHERE play_type = 'TURNOVER' OR is_fumble),
		       COUNT(*) FILTER (WHERE down = 3),
		       COUNT(*) FILTER (WHERE down = 3 AND gained_yards >= distance),
		       COUNT(*) FILTER (WHERE gained_yards >= distance)
		FROM football_events
		WHERE match_id = $1 AND offense_team IS NOT NULL
		GROUP BY offense_team`

	rows, err := s.pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats for match %d: %w", matchID, err)
	}
	defer rows.Close()

	stats := &models.MatchStats{
		MatchID: matchID,
		Teams:   make(map[string]models.TeamStats),
	}
	for rows.Next() {
		var ts models.TeamStats
		if err := rows.Scan(
			&ts.TeamID, &ts.OffenseYards, &ts.PassYards, &ts.RunYards,
			&ts.PassAttempts, &ts.PassCompleted, &ts.RunAttempts, &ts.Turnovers,
			&ts.ThirdDownAtt, &ts.ThirdDownConv, &ts.FirstDowns,
		); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Teams[fmt.Sprintf("%d", ts.TeamID)] = ts
	}
	return stats, rows.Err()
}

// GetClockState loads a persisted clock row, used to restore running clocks
// after a process restart.
func (s *Store) GetClockState(ctx context.Context, matchID int64, kind gameclock.Kind) (gameclock.State, error) {
	const q = `
		SELECT match_id, kind, value, status, direction, max_value, started_at
		FROM match_clocks
		WHERE match_id = $1 AND kind = $2`

	var st gameclock.State
	err := s.pool.QueryRow(ctx, q, matchID, string(kind)).Scan(
		&st.MatchID, &st.Kind, &st.Value, &st.Status, &st.Direction, &st.MaxValue, &st.StartedAt,
	)
	if err != nil {
		return st, fmt.Errorf("query %s for match %d: %w", kind, matchID, err)
	}
	return st, nil
}

// ListRunningClocks returns every clock persisted as running, for restore on
// startup.
func (s *Store) ListRunningClocks(ctx context.Context) ([]gameclock.State, error) {
	const q = `
		SELECT match_id, kind, value, status, direction, max_value, started_at
		FROM match_clocks
		WHERE status = 'running'`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query running clocks: %w", err)
	}
	defer rows.Close()

	var states []gameclock.State
	for rows.Next() {
		var st gameclock.State
		if err := rows.Scan(&st.MatchID, &st.Kind, &st.Value, &st.Status, &st.Direction, &st.MaxValue, &st.StartedAt); err != nil {
			return nil, fmt.Errorf("scan clock row: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// SaveClockState upserts a clock row. The periodic syncer calls this so a
// restart or a viewer that missed a transition converges on the right value.
// The transaction sets livesync.suppress_notify so the clock trigger stays
// quiet: this write persists state the process already holds, and consuming
// it back as a change would double-broadcast every sync.
func (s *Store) SaveClockState(ctx context.Context, state gameclock.State) error {
	const q = `
		INSERT INTO match_clocks (match_id, kind, value, status, direction, max_value, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (match_id, kind) DO UPDATE
		SET value = EXCLUDED.value,
		    status = EXCLUDED.status,
		    direction = EXCLUDED.direction,
		    max_value = EXCLUDED.max_value,
		    started_at = EXCLUDED.started_at,
		    updated_at = now()`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clock save for match %d: %w", state.MatchID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('livesync.suppress_notify', 'on', true)`); err != nil {
		return fmt.Errorf("suppress notify for match %d: %w", state.MatchID, err)
	}
	if _, err := tx.Exec(ctx, q,
		state.MatchID, string(state.Kind), state.Value, string(state.Status),
		string(state.Direction), state.MaxValue, state.StartedAt,
	); err != nil {
		return fmt.Errorf("save %s for match %d: %w", state.Kind, state.MatchID, err)
	}
	return tx.Commit(ctx)
}

// ClaimStatsNotify atomically claims the per-match stats notification window.
// It returns true when at least `window` has passed since the last claim,
// updating last_notified_at in the same statement so concurrent emitters
// cannot both win.
func (s *Store) ClaimStatsNotify(ctx context.Context, matchID int64, window time.Duration) (bool, error) {
	const q = `
		INSERT INTO stats_notify_throttle (match_id, last_notified_at)
		VALUES ($1, now())
		ON CONFLICT (match_id) DO UPDATE
		SET last_notified_at = now()
		WHERE stats_notify_throttle.last_notified_at <= now() - $2::interval
		RETURNING match_id`

	interval := fmt.Sprintf("%f seconds", window.Seconds())
	var claimed int64
	err := s.pool.QueryRow(ctx, q, matchID, interval).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		// The window has not elapsed yet.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim stats notify for match %d: %w", matchID, err)
	}
	return true, nil
}

// NotifyGate adapts ClaimStatsNotify to the bridge's stats gate, so that in a
// multi-instance deployment only the instance that wins the claim recomputes
// and pushes statistics for the window.
type NotifyGate struct {
	Store  *Store
	Window time.Duration
}

// AllowStats claims the per-match window. Claim failures are treated as
// not-allowed; the next event retries.
func (g NotifyGate) AllowStats(ctx context.Context, matchID int64) bool {
	allowed, err := g.Store.ClaimStatsNotify(ctx, matchID, g.Window)
	if err != nil {
		log.Error().Err(err).Int64("match_id", matchID).Msg("stats notify claim failed")
		return false
	}
	return allowed
}

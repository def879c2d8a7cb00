// Package ledger persists terminal match outcomes and cumulative standings.
// It consumes only match_ended events; everything else about a match lives
// in the broadcaster's event stream.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"geniusarena/internal/session"
)

// --------- Data models ---------

// MatchResult is one recorded terminal outcome.
type MatchResult struct {
	ID          int64          `json:"id"`
	MatchID     uuid.UUID      `json:"match_id"`
	GameType    string         `json:"game_type"`
	Winner      string         `json:"winner,omitempty"`
	Draw        bool           `json:"draw"`
	Forfeit     bool           `json:"forfeit"`
	Aborted     bool           `json:"aborted"`
	Rounds      int            `json:"rounds"`
	Players     []string       `json:"players"`
	FinalScores map[string]int `json:"final_scores"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// ScoreRecord is the cumulative standing for one player identity.
type ScoreRecord struct {
	Identity  string    `json:"identity"`
	Wins      int64     `json:"wins"`
	Losses    int64     `json:"losses"`
	Draws     int64     `json:"draws"`
	Points    int64     `json:"points"`
	Matches   int64     `json:"matches"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Points awarded per outcome. A forfeit win pays the same as a played one.
const (
	pointsWin  = 3
	pointsDraw = 1
)

// stripeCount sizes the per-identity write locks. Results touch at most a
// handful of identities, so a small fixed table is plenty.
const stripeCount = 32

// --------- Store ---------

type Store struct {
	db      *sql.DB
	stripes [stripeCount]sync.Mutex
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&cache=shared", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS match_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL UNIQUE,
			game_type TEXT NOT NULL,
			winner TEXT DEFAULT '',
			draw INTEGER NOT NULL DEFAULT 0,
			forfeit INTEGER NOT NULL DEFAULT 0,
			aborted INTEGER NOT NULL DEFAULT 0,
			rounds INTEGER NOT NULL,
			players TEXT NOT NULL,
			final_scores TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_recorded ON match_results(recorded_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_game ON match_results(game_type);`,

		`CREATE TABLE IF NOT EXISTS score_records (
			identity TEXT PRIMARY KEY,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			matches INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_points ON score_records(points DESC, wins DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Recording ---------

// RecordMatch stores the terminal outcome of a match and folds it into the
// standings. Idempotent on match id: replaying the same terminal event is a
// no-op. Aborted matches are recorded but never move the standings.
func (s *Store) RecordMatch(ctx context.Context, ev session.Event) error {
	if ev.Type != session.EventMatchEnded {
		return fmt.Errorf("ledger: event %q is not terminal", ev.Type)
	}
	ended, err := terminalPayload(ev.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	players, err := json.Marshal(ended.Players)
	if err != nil {
		return err
	}
	scores, err := json.Marshal(ended.FinalScores)
	if err != nil {
		return err
	}

	s.lockIdentities(ended.Players)
	defer s.unlockIdentities(ended.Players)

	inserted := false
	err = s.write(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO match_results(
				match_id, game_type, winner, draw, forfeit, aborted,
				rounds, players, final_scores, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.MatchID.String(), string(ended.GameType), ended.Outcome.Winner,
			boolInt(ended.Outcome.Draw), boolInt(ended.Forfeit), boolInt(ended.Aborted),
			ended.Rounds, string(players), string(scores), now)
		if err != nil {
			if isConstraintErr(err) {
				// Already recorded.
				return nil
			}
			return err
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
		return nil
	})
	if err != nil || !inserted || ended.Aborted {
		return err
	}

	for _, identity := range ended.Players {
		wins, losses, draws, points := 0, 0, 0, 0
		switch {
		case ended.Outcome.Draw:
			draws, points = 1, pointsDraw
		case identity == ended.Outcome.Winner:
			wins, points = 1, pointsWin
		default:
			losses = 1
		}
		err := s.write(ctx, func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO score_records(identity, wins, losses, draws, points, matches, updated_at)
				VALUES (?, ?, ?, ?, ?, 1, ?)
				ON CONFLICT(identity) DO UPDATE SET
					wins = wins + excluded.wins,
					losses = losses + excluded.losses,
					draws = draws + excluded.draws,
					points = points + excluded.points,
					matches = matches + 1,
					updated_at = excluded.updated_at`,
				identity, wins, losses, draws, points, now)
			return err
		})
		if err != nil {
			return fmt.Errorf("ledger: update standing for %s: %w", identity, err)
		}
	}
	return nil
}

func terminalPayload(payload any) (session.MatchEnded, error) {
	switch p := payload.(type) {
	case session.MatchEnded:
		return p, nil
	case *session.MatchEnded:
		return *p, nil
	default:
		return session.MatchEnded{}, fmt.Errorf("ledger: unexpected terminal payload %T", payload)
	}
}

// write runs fn with fibonacci backoff while SQLite reports the database
// busy or locked.
func (s *Store) write(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(5*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isBusyErr(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// lockIdentities takes the stripe locks covering every identity, in stripe
// order so concurrent recorders never deadlock.
func (s *Store) lockIdentities(identities []string) {
	for _, i := range stripesFor(identities) {
		s.stripes[i].Lock()
	}
}

func (s *Store) unlockIdentities(identities []string) {
	stripes := stripesFor(identities)
	for i := len(stripes) - 1; i >= 0; i-- {
		s.stripes[stripes[i]].Unlock()
	}
}

func stripesFor(identities []string) []int {
	seen := make(map[int]bool, len(identities))
	for _, id := range identities {
		h := fnv.New32a()
		h.Write([]byte(id))
		seen[int(h.Sum32()%stripeCount)] = true
	}
	out := make([]int, 0, len(seen))
	for i := 0; i < stripeCount; i++ {
		if seen[i] {
			out = append(out, i)
		}
	}
	return out
}

// --------- Queries ---------

// Leaderboard returns standings ordered by points, then wins, then name.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]ScoreRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, wins, losses, draws, points, matches, updated_at
		FROM score_records
		ORDER BY points DESC, wins DESC, identity ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		var r ScoreRecord
		if err := rows.Scan(&r.Identity, &r.Wins, &r.Losses, &r.Draws, &r.Points, &r.Matches, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Standing returns the cumulative record for one identity.
func (s *Store) Standing(ctx context.Context, identity string) (ScoreRecord, bool, error) {
	var r ScoreRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, wins, losses, draws, points, matches, updated_at
		FROM score_records WHERE identity = ?`, identity).
		Scan(&r.Identity, &r.Wins, &r.Losses, &r.Draws, &r.Points, &r.Matches, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ScoreRecord{}, false, nil
	}
	if err != nil {
		return ScoreRecord{}, false, err
	}
	return r, true, nil
}

// Result returns the recorded outcome for a match if one exists.
func (s *Store) Result(ctx context.Context, matchID uuid.UUID) (MatchResult, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, game_type, winner, draw, forfeit, aborted,
		       rounds, players, final_scores, recorded_at
		FROM match_results WHERE match_id = ?`, matchID.String())
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchResult{}, false, nil
	}
	if err != nil {
		return MatchResult{}, false, err
	}
	return r, true, nil
}

// ListResults returns recent outcomes, newest first.
func (s *Store) ListResults(ctx context.Context, limit, offset int) ([]MatchResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, game_type, winner, draw, forfeit, aborted,
		       rounds, players, final_scores, recorded_at
		FROM match_results
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (MatchResult, error) {
	var (
		r                      MatchResult
		matchID                string
		draw, forfeit, aborted int
		players, scores        string
	)
	if err := row.Scan(&r.ID, &matchID, &r.GameType, &r.Winner, &draw, &forfeit, &aborted,
		&r.Rounds, &players, &scores, &r.RecordedAt); err != nil {
		return MatchResult{}, err
	}
	id, err := uuid.Parse(matchID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("ledger: corrupt match id %q: %w", matchID, err)
	}
	r.MatchID = id
	r.Draw, r.Forfeit, r.Aborted = draw != 0, forfeit != 0, aborted != 0
	if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
		return MatchResult{}, err
	}
	if err := json.Unmarshal([]byte(scores), &r.FinalScores); err != nil {
		return MatchResult{}, err
	}
	return r, nil
}

// --------- helpers ---------

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintErr(err error) bool {
	// modernc sqlite returns errors with messages containing "constraint failed"
	// or "UNIQUE constraint failed". Use substring match.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

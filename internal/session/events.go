package session

import (
	"time"

	"github.com/google/uuid"

	"geniusarena/internal/games"
	"geniusarena/internal/player"
)

// EventType names a match event on the wire.
type EventType string

const (
	EventTurnTaken         EventType = "turn_taken"
	EventConsensusSnapshot EventType = "consensus_snapshot"
	EventScoreUpdate       EventType = "score_update"
	EventMatchEnded        EventType = "match_ended"
)

// Event is an immutable, append-only fact about one match. Events for a
// match are strictly ordered by sequence number and never revised; they are
// the only artifact shared between the orchestrator, the ledger, and the
// broadcaster.
type Event struct {
	MatchID uuid.UUID `json:"match_id"`
	Seq     int       `json:"seq"`
	Turn    int       `json:"turn"`
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// TurnTaken records one player's contribution to a round. An invalid move
// is recorded but never applied; a missing move is a timeout or failed
// consensus.
type TurnTaken struct {
	PlayerID string     `json:"player_id"`
	Move     games.Move `json:"move,omitempty"`
	Invalid  bool       `json:"invalid,omitempty"`
	Missing  bool       `json:"missing,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Strikes  int        `json:"strikes,omitempty"`
}

// ConsensusSnapshot exposes how a team arrived at its move.
type ConsensusSnapshot struct {
	Decision player.Decision `json:"decision"`
}

// ScoreUpdate carries the cumulative scores after a resolved round.
type ScoreUpdate struct {
	Round  int            `json:"round"`
	Scores map[string]int `json:"scores"`
}

// MatchEnded is the single terminal event every match emits, whether it
// completed, was forfeited, or aborted.
type MatchEnded struct {
	GameType    games.GameType `json:"game_type"`
	Outcome     games.Outcome  `json:"outcome"`
	Forfeit     bool           `json:"forfeit,omitempty"`
	Aborted     bool           `json:"aborted,omitempty"`
	Rounds      int            `json:"rounds"`
	Players     []string       `json:"players"`
	FinalScores map[string]int `json:"final_scores"`
}

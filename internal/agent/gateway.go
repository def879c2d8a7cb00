// Package agent is the narrow async interface to a reasoning backend: hand
// it a turn context, get one proposed move back before the deadline. It
// knows nothing about game rules and never retries — retry policy belongs
// to the orchestration layer where the turn budget is visible.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"geniusarena/internal/games"
)

// ErrTimeout marks a call cancelled by its deadline. Treated as a missing
// proposal, never as a crash.
var ErrTimeout = errors.New("agent call timed out")

// TransportError is a protocol or connectivity failure, reported distinctly
// from a timeout so coordination can choose to exclude vs. penalize.
type TransportError struct {
	AgentID string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent %s transport error: %v", e.AgentID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Handle identifies one callable reasoning backend. Read-only after
// creation and freely shared across sessions.
type Handle struct {
	ID       string        `json:"id"`
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
}

// Proposal is one sub-agent's raw move suggestion for the current turn.
type Proposal struct {
	AgentID    string     `json:"agent_id"`
	AgentIndex int        `json:"agent_index"`
	Role       string     `json:"role,omitempty"`
	Move       games.Move `json:"move"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// TurnContext is everything an agent may see for one turn. Peer proposals
// are populated only when the team's strategy shares them; uncoordinated
// strategies keep sub-agents blind to each other by construction.
type TurnContext struct {
	MatchID       string          `json:"match_id"`
	GameType      string          `json:"game_type"`
	Round         int             `json:"round"`
	PlayerID      string          `json:"player_id"`
	AgentIndex    int             `json:"agent_index"`
	Role          string          `json:"role,omitempty"`
	State         json.RawMessage `json:"state"`
	LegalMoves    []string        `json:"legal_moves"`
	PeerProposals []Proposal      `json:"peer_proposals,omitempty"`
}

// Gateway submits one turn context to a reasoning backend. A call that
// exceeds ctx's deadline returns ErrTimeout; protocol failures return a
// *TransportError.
type Gateway interface {
	Propose(ctx context.Context, turn TurnContext) (Proposal, error)
}

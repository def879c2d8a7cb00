package games

import (
	"fmt"
	"sort"
)

// GameType identifies which rule set a match uses.
type GameType string

const (
	TypeMinority  GameType = "minority"
	TypeByzantine GameType = "byzantine"
	TypeMaze      GameType = "maze"
	TypeDilemma   GameType = "dilemma"
)

// Config carries the match parameters an engine needs to build its
// initial state.
type Config struct {
	Players []string          `json:"players"`
	Rounds  int               `json:"rounds"`
	Seed    int64             `json:"seed"`
	Rules   map[string]string `json:"rules,omitempty"`
}

// Move is one player's move for a single round.
type Move struct {
	Choice string `json:"choice"`
}

// Outcome describes how a match ended.
type Outcome struct {
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// TurnRecord is the resolved result of one round, kept in state history
// so replays stay deterministic.
type TurnRecord struct {
	Round  int             `json:"round"`
	Moves  map[string]Move `json:"moves"`
	Deltas map[string]int  `json:"deltas"`
}

// State is an immutable snapshot of one match. Apply and Resolve return
// fresh copies; callers must never mutate a State they received.
type State struct {
	Type      GameType        `json:"game_type"`
	Round     int             `json:"round"`
	MaxRounds int             `json:"max_rounds"`
	Players   []string        `json:"players"`
	Scores    map[string]int  `json:"scores"`
	Pending   map[string]Move `json:"pending,omitempty"`
	History   []TurnRecord    `json:"history,omitempty"`
	Data      any             `json:"data,omitempty"`
}

// Engine defines one game type's rules. Implementations are stateless;
// all match progress lives in the State value.
type Engine interface {
	// Type returns the game type identifier.
	Type() GameType

	// InitialState builds the state for round zero.
	InitialState(cfg Config) (State, error)

	// Validate checks a move without applying it.
	Validate(st State, playerID string, mv Move) error

	// Apply stages a validated move for the open round.
	Apply(st State, playerID string, mv Move) State

	// Resolve closes the round using whatever moves were staged. It always
	// advances the round counter, so a round with missing moves still
	// counts toward the configured total.
	Resolve(st State) State

	// IsTerminal reports whether the state is final and, if so, the outcome.
	IsTerminal(st State) (Outcome, bool)

	// Score computes final per-player score deltas for the ledger. Must be
	// deterministic given identical state and outcome.
	Score(st State, out Outcome) map[string]int

	// LegalMoves lists the choices currently open to a player.
	LegalMoves(st State, playerID string) []string
}

// engineRegistry holds all available game engines.
var engineRegistry = make(map[GameType]Engine)

// Register adds an engine to the registry.
func Register(e Engine) {
	engineRegistry[e.Type()] = e
}

// Get retrieves an engine by game type.
func Get(t GameType) (Engine, bool) {
	e, exists := engineRegistry[t]
	return e, exists
}

// List returns all registered game types in sorted order.
func List() []GameType {
	types := make([]GameType, 0, len(engineRegistry))
	for t := range engineRegistry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// init registers all games
func init() {
	Register(&MinorityGame{})
	Register(&ByzantineGame{})
	Register(&MazeGame{})
	Register(&DilemmaGame{})
}

// seated reports whether playerID belongs to the match.
func seated(st State, playerID string) bool {
	for _, p := range st.Players {
		if p == playerID {
			return true
		}
	}
	return false
}

// clone copies the shared state fields. Engine-specific Data is copied by
// the engine that owns it.
func clone(st State) State {
	out := st
	out.Players = append([]string(nil), st.Players...)
	out.Scores = make(map[string]int, len(st.Scores))
	for k, v := range st.Scores {
		out.Scores[k] = v
	}
	out.Pending = make(map[string]Move, len(st.Pending))
	for k, v := range st.Pending {
		out.Pending[k] = v
	}
	out.History = append([]TurnRecord(nil), st.History...)
	return out
}

// stage returns a copy of st with the player's move recorded for the
// open round.
func stage(st State, playerID string, mv Move) State {
	out := clone(st)
	out.Pending[playerID] = mv
	return out
}

// closeRound applies score deltas, archives the round, clears staged moves,
// and advances the round counter.
func closeRound(st State, deltas map[string]int) State {
	out := clone(st)
	rec := TurnRecord{
		Round:  out.Round,
		Moves:  out.Pending,
		Deltas: deltas,
	}
	for p, d := range deltas {
		out.Scores[p] += d
	}
	out.History = append(out.History, rec)
	out.Pending = make(map[string]Move)
	out.Round++
	return out
}

// leader returns the outcome for a score comparison at the end of the
// configured rounds.
func leader(st State, reason string) Outcome {
	best, runnerUp := "", ""
	for _, p := range st.Players {
		if best == "" || st.Scores[p] > st.Scores[best] {
			best = p
		}
	}
	for _, p := range st.Players {
		if p != best && (runnerUp == "" || st.Scores[p] > st.Scores[runnerUp]) {
			runnerUp = p
		}
	}
	if runnerUp != "" && st.Scores[best] == st.Scores[runnerUp] {
		return Outcome{Draw: true, Reason: reason}
	}
	return Outcome{Winner: best, Reason: reason}
}

// checkChoice validates membership and a closed choice set.
func checkChoice(st State, playerID, choice string, allowed ...string) error {
	if !seated(st, playerID) {
		return fmt.Errorf("player %q is not part of this match", playerID)
	}
	for _, a := range allowed {
		if choice == a {
			return nil
		}
	}
	return fmt.Errorf("choice %q is not a legal move", choice)
}

// finalScores copies the cumulative scores as the ledger deltas.
func finalScores(st State) map[string]int {
	out := make(map[string]int, len(st.Scores))
	for p, s := range st.Scores {
		out[p] = s
	}
	return out
}

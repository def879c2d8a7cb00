package api

import (
	"geniusarena/internal/games"
	"geniusarena/internal/ledger"
	"geniusarena/internal/registry"
)

// Error type constants for structured error responses
const (
	ErrTypeValidation = "VALIDATION_ERROR"
	ErrTypeNotFound   = "NOT_FOUND"
	ErrTypeCapacity   = "CAPACITY_EXCEEDED"
	ErrTypeConflict   = "CONFLICT"
	ErrTypeInternal   = "INTERNAL_ERROR"
)

// ArenaError is the structured error envelope every failed request returns.
type ArenaError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// agentDef describes one reasoning backend in a create-player request.
type agentDef struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
	Script   string `json:"script,omitempty"`
	Role     string `json:"role,omitempty"`
}

// thinkingTime bounds how long a player's agents may reason per turn. The
// strategy label ("fixed", "adaptive") is recorded for clients; the
// orchestrator only enforces the upper bound.
type thinkingTime struct {
	MinMS    int64  `json:"min_ms"`
	MaxMS    int64  `json:"max_ms"`
	Strategy string `json:"strategy,omitempty"`
}

// coordinationDef selects and tunes a team's consensus protocol.
type coordinationDef struct {
	Strategy    string             `json:"strategy"`
	SwarmRounds int                `json:"swarm_rounds,omitempty"`
	RoleWeights map[string]float64 `json:"role_weights,omitempty"`
}

// CreateSOTARequest registers a single-model player. The model is named in
// ai_models (one entry); agent is accepted as an alternative for callers that
// already carry a full backend definition.
type CreateSOTARequest struct {
	Name         string       `json:"name"`
	AIModels     []agentDef   `json:"ai_models,omitempty"`
	Agent        agentDef     `json:"agent,omitempty"`
	ThinkingTime thinkingTime `json:"thinking_time"`
}

// CreateCollectiveRequest registers a multi-agent team player.
type CreateCollectiveRequest struct {
	Name         string          `json:"name"`
	Agents       []agentDef      `json:"agents"`
	Coordination coordinationDef `json:"coordination"`
	ThinkingTime thinkingTime    `json:"thinking_time"`
}

// CreatePlayerResponse returns the registered player id.
type CreatePlayerResponse struct {
	PlayerID string `json:"player_id"`
	Agents   int    `json:"agents"`
}

// tournamentRef binds a match to one slot of a named bracket.
type tournamentRef struct {
	Name  string `json:"name"`
	Round int    `json:"round"`
	Slot  int    `json:"slot"`
}

// CreateGameRequest starts a match. Collective and SOTA players are listed
// separately; the match seats them in the order given, collectives first.
type CreateGameRequest struct {
	GameType          string         `json:"game_type"`
	Rounds            int            `json:"rounds"`
	Seed              int64          `json:"seed,omitempty"`
	TimeLimitMS       int64          `json:"time_limit_ms,omitempty"`
	CollectivePlayers []string       `json:"collective_players"`
	SOTAPlayers       []string       `json:"sota_players"`
	Tournament        *tournamentRef `json:"tournament,omitempty"`
}

// CreateGameResponse returns the new match id.
type CreateGameResponse struct {
	GameID string `json:"game_id"`
}

// GameResponse is the status view of one match.
type GameResponse struct {
	registry.MatchInfo
	State *games.State `json:"state,omitempty"`
}

// ListGamesResponse lists known matches.
type ListGamesResponse struct {
	Games []registry.MatchInfo `json:"games"`
	Count int                  `json:"count"`
}

// GameTypesResponse lists the playable game engines.
type GameTypesResponse struct {
	GameTypes []games.GameType `json:"game_types"`
}

// CreateTournamentRequest opens a single-elimination bracket over registered
// players, listed in seeding order.
type CreateTournamentRequest struct {
	Name     string   `json:"name"`
	GameType string   `json:"game_type"`
	Entrants []string `json:"entrants"`
}

// TournamentResponse is the status view of one bracket.
type TournamentResponse struct {
	Name     string             `json:"name"`
	GameType string             `json:"game_type"`
	Bracket  ledger.BracketView `json:"bracket"`
}

// ListTournamentsResponse lists open tournaments by name.
type ListTournamentsResponse struct {
	Tournaments []string `json:"tournaments"`
}

// LeaderboardResponse carries cumulative standings.
type LeaderboardResponse struct {
	Standings []ledger.ScoreRecord `json:"standings"`
}

// ResultsResponse carries recorded terminal outcomes.
type ResultsResponse struct {
	Results []ledger.MatchResult `json:"results"`
	Count   int                  `json:"count"`
}

// HealthResponse is the liveness view.
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	LiveMatches  int    `json:"live_matches"`
	KnownPlayers int    `json:"known_players"`
	GameTypes    int    `json:"game_types"`
	Timestamp    string `json:"timestamp"`
}

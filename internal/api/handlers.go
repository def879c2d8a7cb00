package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geniusarena/internal/agent"
	"geniusarena/internal/consensus"
	"geniusarena/internal/games"
	"geniusarena/internal/ledger"
	"geniusarena/internal/player"
	"geniusarena/internal/registry"
)

const (
	defaultThinkingBudget = 30 * time.Second
	maxThinkingBudget     = 5 * time.Minute
)

// --------- Players ---------

func (s *Server) handleCreateSOTA(w http.ResponseWriter, r *http.Request) {
	var req CreateSOTARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", map[string]any{"cause": err.Error()})
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "name is required", nil)
		return
	}
	def := req.Agent
	switch {
	case len(req.AIModels) == 1:
		def = req.AIModels[0]
	case len(req.AIModels) > 1:
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "a SOTA player runs one model; use the collective endpoint for teams", map[string]any{"ai_models": len(req.AIModels)})
		return
	}
	if def.Endpoint == "" && def.Script == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "model needs an endpoint or a script", nil)
		return
	}

	entry := registry.PlayerEntry{
		Spec: player.Spec{
			ID:             req.Name,
			Name:           req.Name,
			Agents:         []agent.Handle{handleFrom(def, req.Name, 0)},
			ThinkingBudget: budgetFrom(req.ThinkingTime),
		},
		Scripts: []string{def.Script},
	}
	s.registerPlayer(w, r, entry)
}

func (s *Server) handleCreateCollective(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", map[string]any{"cause": err.Error()})
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "name is required", nil)
		return
	}
	if len(req.Agents) < 2 {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "a collective needs at least two agents", map[string]any{"agents": len(req.Agents)})
		return
	}
	strategy := consensus.Strategy{
		Kind:        consensus.Kind(req.Coordination.Strategy),
		SwarmRounds: req.Coordination.SwarmRounds,
		RoleWeights: req.Coordination.RoleWeights,
	}
	if !strategy.Valid() {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "unknown coordination strategy", map[string]any{"strategy": req.Coordination.Strategy})
		return
	}

	handles := make([]agent.Handle, len(req.Agents))
	scripts := make([]string, len(req.Agents))
	roles := make([]string, len(req.Agents))
	for i, a := range req.Agents {
		if a.Endpoint == "" && a.Script == "" {
			s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "agent needs an endpoint or a script", map[string]any{"agent_index": i})
			return
		}
		handles[i] = handleFrom(a, req.Name, i)
		scripts[i] = a.Script
		roles[i] = a.Role
	}
	entry := registry.PlayerEntry{
		Spec: player.Spec{
			ID:             req.Name,
			Name:           req.Name,
			Agents:         handles,
			Roles:          roles,
			Strategy:       strategy,
			ThinkingBudget: budgetFrom(req.ThinkingTime),
		},
		Scripts: scripts,
	}
	s.registerPlayer(w, r, entry)
}

func (s *Server) registerPlayer(w http.ResponseWriter, r *http.Request, entry registry.PlayerEntry) {
	if err := s.reg.RegisterPlayer(entry); err != nil {
		status, errType := http.StatusBadRequest, ErrTypeValidation
		if errors.Is(err, registry.ErrDuplicateID) {
			status, errType = http.StatusConflict, ErrTypeConflict
		}
		s.writeError(w, r, status, errType, err.Error(), nil)
		return
	}
	s.logger.Printf("registered player %q with %d agent(s)", entry.Spec.ID, len(entry.Spec.Agents))
	s.writeJSON(w, http.StatusCreated, CreatePlayerResponse{PlayerID: entry.Spec.ID, Agents: len(entry.Spec.Agents)})
}

func handleFrom(a agentDef, playerID string, index int) agent.Handle {
	id := a.ID
	if id == "" {
		id = playerID + "-" + strconv.Itoa(index)
	}
	return agent.Handle{ID: id, Endpoint: a.Endpoint, Model: a.Model}
}

// budgetFrom clamps the requested per-turn thinking time. Only the upper
// bound matters to the orchestrator; agents are free to answer early.
func budgetFrom(t thinkingTime) time.Duration {
	if t.MaxMS <= 0 {
		return defaultThinkingBudget
	}
	budget := time.Duration(t.MaxMS) * time.Millisecond
	if budget > maxThinkingBudget {
		return maxThinkingBudget
	}
	return budget
}

// --------- Matches ---------

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", map[string]any{"cause": err.Error()})
		return
	}

	seats := append(append([]string(nil), req.CollectivePlayers...), req.SOTAPlayers...)
	cfg := registry.MatchConfig{
		GameType:   games.GameType(req.GameType),
		Rounds:     req.Rounds,
		Seed:       req.Seed,
		TurnBudget: time.Duration(req.TimeLimitMS) * time.Millisecond,
		PlayerIDs:  seats,
	}
	if req.Tournament != nil {
		slot, ok := s.bindTournamentSlot(w, r, *req.Tournament, seats)
		if !ok {
			return
		}
		cfg.Tournament = slot
	}
	id, err := s.reg.CreateMatch(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrCapacity):
			s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeCapacity, "server is at concurrent match capacity", nil)
		case errors.Is(err, registry.ErrUnknownPlayer):
			s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, err.Error(), nil)
		default:
			s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, err.Error(), nil)
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, CreateGameResponse{GameID: id.String()})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	info, found := s.reg.Info(id)
	if !found {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "no such game", map[string]any{"game_id": id.String()})
		return
	}
	resp := GameResponse{MatchInfo: info}
	if state, ok := s.reg.State(id); ok {
		resp.State = &state
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAbortGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	if err := s.reg.Abort(id); err != nil {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "no such game", map[string]any{"game_id": id.String()})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	list := s.reg.List()
	s.writeJSON(w, http.StatusOK, ListGamesResponse{Games: list, Count: len(list)})
}

func (s *Server) matchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid game id", map[string]any{"game_id": raw})
		return uuid.Nil, false
	}
	return id, true
}

// bindTournamentSlot checks that a requested bracket slot exists, is open,
// and is played by exactly the seated players. It writes the error response
// itself on failure.
func (s *Server) bindTournamentSlot(w http.ResponseWriter, r *http.Request, ref tournamentRef, seats []string) (*registry.TournamentSlot, bool) {
	tour, found := s.tournaments.Get(ref.Name)
	if !found {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "no such tournament", map[string]any{"tournament": ref.Name})
		return nil, false
	}
	first, second, winner, err := tour.Bracket().Match(ref.Round, ref.Slot)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "no such bracket match", map[string]any{"round": ref.Round, "slot": ref.Slot})
		return nil, false
	}
	if winner != "" {
		s.writeError(w, r, http.StatusConflict, ErrTypeConflict, "bracket match already decided", map[string]any{"winner": winner})
		return nil, false
	}
	if first == "" || second == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "bracket match participants not decided yet", map[string]any{"round": ref.Round, "slot": ref.Slot})
		return nil, false
	}
	paired := len(seats) == 2 &&
		((seats[0] == first && seats[1] == second) || (seats[0] == second && seats[1] == first))
	if !paired {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "players do not match the bracket slot", map[string]any{"expected": []string{first, second}})
		return nil, false
	}
	return &registry.TournamentSlot{Name: ref.Name, Round: ref.Round, Slot: ref.Slot}, true
}

// --------- Tournaments ---------

func (s *Server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req CreateTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON body", map[string]any{"cause": err.Error()})
		return
	}
	if _, ok := games.Get(games.GameType(req.GameType)); !ok {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "unknown game type", map[string]any{"game_type": req.GameType})
		return
	}
	for _, entrant := range req.Entrants {
		if _, registered := s.reg.Player(entrant); !registered {
			s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "entrant is not a registered player", map[string]any{"entrant": entrant})
			return
		}
	}
	tour, err := s.tournaments.Create(req.Name, req.GameType, req.Entrants)
	if err != nil {
		status, errType := http.StatusBadRequest, ErrTypeValidation
		if errors.Is(err, ledger.ErrDuplicateTournament) {
			status, errType = http.StatusConflict, ErrTypeConflict
		}
		s.writeError(w, r, status, errType, err.Error(), nil)
		return
	}
	s.logger.Printf("tournament %q opened: %s over %d entrants", tour.Name, tour.GameType, len(req.Entrants))
	s.writeJSON(w, http.StatusCreated, TournamentResponse{Name: tour.Name, GameType: tour.GameType, Bracket: tour.Bracket().View()})
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tour, found := s.tournaments.Get(name)
	if !found {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "no such tournament", map[string]any{"tournament": name})
		return
	}
	s.writeJSON(w, http.StatusOK, TournamentResponse{Name: tour.Name, GameType: tour.GameType, Bracket: tour.Bracket().View()})
}

func (s *Server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ListTournamentsResponse{Tournaments: s.tournaments.Names()})
}

// --------- Standings ---------

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	board, err := s.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "leaderboard query failed", map[string]any{"cause": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Standings: board})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	results, err := s.ledger.ListResults(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "results query failed", map[string]any{"cause": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, ResultsResponse{Results: results, Count: len(results)})
}

// --------- Spectators ---------

func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	if _, found := s.reg.Info(id); !found {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "no such game", map[string]any{"game_id": id.String()})
		return
	}
	s.ws.ServeMatch(w, r, id)
}

// Package api exposes the arena over HTTP: player registration, match
// creation and control, standings, and the spectator WebSocket stream.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"geniusarena/internal/broadcast"
	"geniusarena/internal/games"
	"geniusarena/internal/ledger"
	"geniusarena/internal/registry"
)

// Server handles HTTP requests
type Server struct {
	reg         *registry.Registry
	ledger      *ledger.Store
	tournaments *ledger.Tournaments
	ws          *broadcast.WSHandler
	logger      *log.Logger
	startTime   time.Time
}

// NewServer creates a new API server
func NewServer(reg *registry.Registry, store *ledger.Store, tournaments *ledger.Tournaments, ws *broadcast.WSHandler) *Server {
	return &Server{
		reg:         reg,
		ledger:      store,
		tournaments: tournaments,
		ws:          ws,
		logger:      log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		startTime:   time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/player/sota/create", s.handleCreateSOTA)
		r.Post("/player/collective/create", s.handleCreateCollective)
		r.Post("/game/create", s.handleCreateGame)
		r.Get("/game/{id}", s.handleGetGame)
		r.Post("/game/{id}/abort", s.handleAbortGame)
		r.Get("/games", s.handleListGames)
		r.Get("/game-types", s.handleGameTypes)
		r.Post("/tournament/create", s.handleCreateTournament)
		r.Get("/tournament/{name}", s.handleGetTournament)
		r.Get("/tournaments", s.handleListTournaments)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/results", s.handleResults)
	})

	r.Get("/ws/games/{id}", s.handleSpectate)

	return r
}

// recoverer converts handler panics into structured 500s instead of
// dropping the connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeError writes a structured error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string, context map[string]any) {
	s.writeJSON(w, status, ArenaError{
		Type:      errType,
		Message:   message,
		Context:   context,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		LiveMatches:  s.reg.Live(),
		KnownPlayers: len(s.reg.ListPlayers()),
		GameTypes:    len(games.List()),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGameTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GameTypesResponse{GameTypes: games.List()})
}

// Package session runs one match from first turn to terminal event. Each
// session is owned by exactly one goroutine, so match state needs no
// locking; the only escape hatches are the status snapshot for the API and
// the event sink.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"geniusarena/internal/agent"
	"geniusarena/internal/games"
	"geniusarena/internal/player"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// maxStrikes forfeits a player after this many consecutive invalid or
// missing moves, so a dead agent cannot stall a match forever.
const maxStrikes = 3

// Sink receives match events in order. Implementations must not block.
type Sink func(Event)

// Session owns one running match.
type Session struct {
	id         uuid.UUID
	engine     games.Engine
	players    []*player.Player
	turnBudget time.Duration
	sink       Sink
	logger     *log.Logger

	// Owned by the Run goroutine.
	state   games.State
	seq     int
	strikes map[string]int

	mu       sync.Mutex
	status   Status
	snapshot games.State

	abortOnce  sync.Once
	finishOnce sync.Once
	abort      chan struct{}
	done       chan struct{}
}

// New builds a pending session. players supplies exactly the identities
// the game config seats.
func New(id uuid.UUID, engine games.Engine, cfg games.Config, players []*player.Player, turnBudget time.Duration, sink Sink, logger *log.Logger) (*Session, error) {
	if len(players) < 2 {
		return nil, fmt.Errorf("a match needs at least 2 players, got %d", len(players))
	}
	if sink == nil {
		sink = func(Event) {}
	}
	if logger == nil {
		logger = log.Default()
	}
	state, err := engine.InitialState(cfg)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	return &Session{
		id:         id,
		engine:     engine,
		players:    players,
		turnBudget: turnBudget,
		sink:       sink,
		logger:     logger,
		state:      state,
		snapshot:   state,
		strikes:    make(map[string]int, len(players)),
		status:     StatusPending,
		abort:      make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the match id.
func (s *Session) ID() uuid.UUID { return s.id }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the latest resolved state snapshot.
func (s *Session) State() games.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Abort administratively terminates the match. Safe to call at any time
// and more than once; the session still emits exactly one match_ended.
func (s *Session) Abort() {
	s.abortOnce.Do(func() { close(s.abort) })
}

// Done is closed after the terminal event has been delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the match to completion. It blocks until a terminal event has
// been emitted and must be called exactly once.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	s.setStatus(StatusRunning)

	// An engine panic is an invariant violation fatal to this match only:
	// it aborts the session, never the process.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("match %s: game engine invariant violation: %v", s.id, r)
			s.finish(games.Outcome{Reason: fmt.Sprintf("engine invariant violation: %v", r)}, false, true)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.finish(games.Outcome{Reason: "shutdown"}, false, true)
			return
		case <-s.abort:
			s.finish(games.Outcome{Reason: "administratively aborted"}, false, true)
			return
		default:
		}

		if out, terminal := s.engine.IsTerminal(s.state); terminal {
			s.finish(out, false, false)
			return
		}

		if forfeiter, ok := s.runTurn(ctx); ok {
			out := games.Outcome{
				Winner: s.opponentOf(forfeiter),
				Reason: fmt.Sprintf("%s forfeited after %d consecutive failed moves", forfeiter, maxStrikes),
			}
			s.finish(out, true, false)
			return
		}
	}
}

// runTurn collects both players' moves concurrently, applies the valid
// ones, resolves the round, and reports any player who just struck out.
func (s *Session) runTurn(ctx context.Context) (forfeiter string, forfeited bool) {
	turnCtx := ctx
	if s.turnBudget > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.turnBudget)
		defer cancel()
	}

	type turnResult struct {
		player   *player.Player
		move     games.Move
		decision player.Decision
		err      error
	}

	// The public state is frozen before any move is staged, so neither
	// player (nor a spectator mid-turn) sees the other's pending move.
	stateJSON, _ := json.Marshal(s.state)

	results := make([]turnResult, len(s.players))
	var wg sync.WaitGroup
	for i, p := range s.players {
		wg.Add(1)
		go func(i int, p *player.Player) {
			defer wg.Done()
			turn := agent.TurnContext{
				MatchID:    s.id.String(),
				GameType:   string(s.engine.Type()),
				Round:      s.state.Round,
				State:      stateJSON,
				LegalMoves: s.engine.LegalMoves(s.state, p.ID()),
			}
			mv, dec, err := p.ProposeMove(turnCtx, turn)
			results[i] = turnResult{player: p, move: mv, decision: dec, err: err}
		}(i, p)
	}
	wg.Wait()

	// Apply in fixed player order for a stable event stream.
	for _, res := range results {
		id := res.player.ID()
		if res.player.Spec().Team() && len(res.decision.Proposals) > 0 {
			s.emit(EventConsensusSnapshot, ConsensusSnapshot{Decision: res.decision})
		}

		switch {
		case res.err != nil:
			s.strikes[id]++
			s.emit(EventTurnTaken, TurnTaken{
				PlayerID: id,
				Missing:  true,
				Reason:   res.err.Error(),
				Strikes:  s.strikes[id],
			})
		default:
			if err := s.engine.Validate(s.state, id, res.move); err != nil {
				s.strikes[id]++
				s.emit(EventTurnTaken, TurnTaken{
					PlayerID: id,
					Move:     res.move,
					Invalid:  true,
					Reason:   err.Error(),
					Strikes:  s.strikes[id],
				})
				break
			}
			s.strikes[id] = 0
			s.state = s.engine.Apply(s.state, id, res.move)
			s.emit(EventTurnTaken, TurnTaken{PlayerID: id, Move: res.move})
		}
	}

	s.state = s.engine.Resolve(s.state)
	s.publishSnapshot()
	s.emit(EventScoreUpdate, ScoreUpdate{Round: s.state.Round, Scores: s.state.Scores})

	for _, p := range s.players {
		if s.strikes[p.ID()] >= maxStrikes {
			return p.ID(), true
		}
	}
	return "", false
}

// finish emits the single terminal event and settles the status. The once
// guard holds even if scoring itself panics mid-finish.
func (s *Session) finish(out games.Outcome, forfeit, aborted bool) {
	s.finishOnce.Do(func() {
		status := StatusCompleted
		if aborted {
			status = StatusAborted
		}
		s.setStatus(status)
		s.publishSnapshot()
		s.emit(EventMatchEnded, MatchEnded{
			GameType:    s.engine.Type(),
			Outcome:     out,
			Forfeit:     forfeit,
			Aborted:     aborted,
			Rounds:      s.state.Round,
			Players:     s.state.Players,
			FinalScores: s.finalScores(out),
		})
	})
}

// finalScores asks the engine to settle scores; if scoring itself violates
// an invariant the running totals stand, so the terminal event still
// carries something usable.
func (s *Session) finalScores(out games.Outcome) (scores map[string]int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("match %s: scoring panic: %v", s.id, r)
			scores = s.state.Scores
		}
	}()
	return s.engine.Score(s.state, out)
}

func (s *Session) opponentOf(playerID string) string {
	for _, p := range s.players {
		if p.ID() != playerID {
			return p.ID()
		}
	}
	return ""
}

func (s *Session) emit(t EventType, payload any) {
	s.seq++
	s.sink(Event{
		MatchID: s.id,
		Seq:     s.seq,
		Turn:    s.state.Round,
		Type:    t,
		At:      time.Now().UTC(),
		Payload: payload,
	})
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) publishSnapshot() {
	s.mu.Lock()
	s.snapshot = s.state
	s.mu.Unlock()
}

// Package player wraps one or many agent gateways behind a single
// "propose move" operation. A single player is one gateway call with the
// full turn budget; a team fans out to every sub-agent in parallel and
// reduces whatever proposals arrive through its coordination strategy.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"geniusarena/internal/agent"
	"geniusarena/internal/consensus"
	"geniusarena/internal/games"
)

// ErrNoMove means the player could not produce a move this turn: the
// single agent timed out or errored, or the team reached no consensus.
var ErrNoMove = errors.New("player produced no move")

// Spec describes a player for the lifetime of a match. Immutable.
type Spec struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Agents         []agent.Handle     `json:"agents"`
	Roles          []string           `json:"roles,omitempty"`
	Strategy       consensus.Strategy `json:"strategy,omitempty"`
	ThinkingBudget time.Duration      `json:"thinking_budget"`
}

// Team reports whether this spec needs a coordination strategy.
func (s Spec) Team() bool { return len(s.Agents) > 1 }

// Decision is the auditable record of how a move was produced, feeding the
// consensus_snapshot spectator event.
type Decision struct {
	PlayerID    string           `json:"player_id"`
	Method      string           `json:"method"`
	Proposals   []agent.Proposal `json:"proposals,omitempty"`
	Move        games.Move       `json:"move"`
	DissentRate float64          `json:"dissent_rate"`
	ElapsedMS   int64            `json:"elapsed_ms"`
}

// Player binds a spec to live gateways for one match.
type Player struct {
	spec     Spec
	gateways []agent.Gateway
	logger   *log.Logger

	// Last turn's proposals, shared into the next turn context for
	// strategies that allow sub-agents to see each other.
	lastProposals []agent.Proposal
}

// New builds a player. The gateways slice must match the spec's agents.
func New(spec Spec, gateways []agent.Gateway, logger *log.Logger) (*Player, error) {
	if len(spec.Agents) == 0 {
		return nil, errors.New("player spec has no agents")
	}
	if len(gateways) != len(spec.Agents) {
		return nil, fmt.Errorf("spec has %d agents but %d gateways supplied", len(spec.Agents), len(gateways))
	}
	if spec.Team() && !spec.Strategy.Valid() {
		return nil, fmt.Errorf("team player %q has invalid strategy %q", spec.ID, spec.Strategy.Kind)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Player{spec: spec, gateways: gateways, logger: logger}, nil
}

// ID returns the player identity used in game states and score records.
func (p *Player) ID() string { return p.spec.ID }

// Spec returns the immutable player spec.
func (p *Player) Spec() Spec { return p.spec }

// ProposeMove produces this player's move for one turn. The context should
// already carry the turn deadline; team sub-agents each get the full
// thinking budget, not a share of it.
func (p *Player) ProposeMove(ctx context.Context, turn agent.TurnContext) (games.Move, Decision, error) {
	start := time.Now()
	turn.PlayerID = p.spec.ID

	if !p.spec.Team() {
		return p.proposeSingle(ctx, turn, start)
	}
	return p.proposeTeam(ctx, turn, start)
}

func (p *Player) proposeSingle(ctx context.Context, turn agent.TurnContext, start time.Time) (games.Move, Decision, error) {
	ctx, cancel := p.budgetContext(ctx)
	defer cancel()

	turn.AgentIndex = 0
	prop, err := p.gateways[0].Propose(ctx, turn)
	dec := Decision{PlayerID: p.spec.ID, Method: "single", ElapsedMS: time.Since(start).Milliseconds()}
	if err != nil {
		p.logger.Printf("player %s: agent %s failed: %v", p.spec.ID, p.spec.Agents[0].ID, err)
		return games.Move{}, dec, fmt.Errorf("%w: %v", ErrNoMove, err)
	}
	dec.Proposals = []agent.Proposal{prop}
	dec.Move = prop.Move
	return prop.Move, dec, nil
}

func (p *Player) proposeTeam(ctx context.Context, turn agent.TurnContext, start time.Time) (games.Move, Decision, error) {
	if p.spec.Strategy.SharesProposals() {
		turn.PeerProposals = p.lastProposals
	}

	var (
		mu        sync.Mutex
		proposals []agent.Proposal
		errs      error
		wg        sync.WaitGroup
	)
	for i, gw := range p.gateways {
		wg.Add(1)
		go func(idx int, gw agent.Gateway) {
			defer wg.Done()
			callCtx, cancel := p.budgetContext(ctx)
			defer cancel()

			sub := turn
			sub.AgentIndex = idx
			if idx < len(p.spec.Roles) {
				sub.Role = p.spec.Roles[idx]
			}
			prop, err := gw.Propose(callCtx, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("agent %s: %w", p.spec.Agents[idx].ID, err))
				return
			}
			proposals = append(proposals, prop)
		}(i, gw)
	}
	wg.Wait()

	if errs != nil {
		p.logger.Printf("player %s: %d/%d agents failed: %v", p.spec.ID, len(multierr.Errors(errs)), len(p.gateways), errs)
	}
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].AgentIndex < proposals[j].AgentIndex
	})
	p.lastProposals = proposals

	dec := Decision{
		PlayerID:    p.spec.ID,
		Method:      string(p.spec.Strategy.Kind),
		Proposals:   proposals,
		DissentRate: dissentRate(proposals),
		ElapsedMS:   time.Since(start).Milliseconds(),
	}

	mv, err := consensus.Resolve(p.spec.Strategy, proposals)
	if err != nil {
		return games.Move{}, dec, fmt.Errorf("%w: %v", ErrNoMove, err)
	}
	dec.Move = mv
	return mv, dec, nil
}

func (p *Player) budgetContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.spec.ThinkingBudget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.spec.ThinkingBudget)
}

// dissentRate is 1 minus the share of the largest agreeing bloc.
func dissentRate(proposals []agent.Proposal) float64 {
	if len(proposals) == 0 {
		return 0
	}
	counts := make(map[string]int)
	max := 0
	for _, p := range proposals {
		counts[p.Move.Choice]++
		if counts[p.Move.Choice] > max {
			max = counts[p.Move.Choice]
		}
	}
	return 1 - float64(max)/float64(len(proposals))
}

// Package consensus reduces a set of sub-agent proposals into one
// authoritative team move. Every strategy is a pure function of its inputs:
// the same proposal set always yields the same move, which keeps matches
// replayable for a fixed agent ordering.
package consensus

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"geniusarena/internal/agent"
	"geniusarena/internal/games"
)

// ErrNoConsensus means the strategy could not resolve a move, typically
// because every sub-agent timed out.
var ErrNoConsensus = errors.New("no consensus reached")

// Kind names a coordination strategy.
type Kind string

const (
	// KindMajority is a plurality over proposed moves.
	KindMajority Kind = "majority"
	// KindConfidence sums proposal confidences per distinct move.
	KindConfidence Kind = "confidence"
	// KindSwarm iteratively nudges proposals toward their ring neighbors.
	KindSwarm Kind = "swarm"
	// KindCouncil weights votes by declared role.
	KindCouncil Kind = "council"
	// KindPlurality is majority math with proposal sharing disabled: the
	// sub-agents never see each other, so any agreement is emergent.
	KindPlurality Kind = "plurality"
)

const defaultSwarmRounds = 3

// Strategy is a team's declared coordination protocol.
type Strategy struct {
	Kind        Kind               `json:"kind"`
	SwarmRounds int                `json:"swarm_rounds,omitempty"`
	RoleWeights map[string]float64 `json:"role_weights,omitempty"`
}

// Valid reports whether the kind is known.
func (s Strategy) Valid() bool {
	switch s.Kind {
	case KindMajority, KindConfidence, KindSwarm, KindCouncil, KindPlurality:
		return true
	}
	return false
}

// SharesProposals reports whether sub-agents may see each other's live
// proposals in their turn context. Only the swarm exchanges positions;
// plurality forbids it by definition and the voting strategies have no use
// for it.
func (s Strategy) SharesProposals() bool {
	return s.Kind == KindSwarm
}

// Resolve reduces the proposal set to exactly one move.
func Resolve(s Strategy, proposals []agent.Proposal) (games.Move, error) {
	if len(proposals) == 0 {
		return games.Move{}, ErrNoConsensus
	}

	// Fix the iteration order up front: ties break toward the lowest agent
	// index, never randomly.
	ordered := append([]agent.Proposal(nil), proposals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].AgentIndex < ordered[j].AgentIndex
	})

	switch s.Kind {
	case KindMajority, KindPlurality:
		return majorityVote(ordered)
	case KindConfidence:
		return weightedVote(ordered, func(p agent.Proposal) decimal.Decimal {
			return decimal.NewFromFloat(p.Confidence)
		})
	case KindCouncil:
		return weightedVote(ordered, func(p agent.Proposal) decimal.Decimal {
			if w, ok := s.RoleWeights[p.Role]; ok {
				return decimal.NewFromFloat(w)
			}
			return decimal.NewFromInt(1)
		})
	case KindSwarm:
		return swarmVote(ordered, s.SwarmRounds)
	default:
		return games.Move{}, ErrNoConsensus
	}
}

// majorityVote picks the most proposed move; ties go to the move backed by
// the lowest agent index.
func majorityVote(ordered []agent.Proposal) (games.Move, error) {
	return weightedVote(ordered, func(agent.Proposal) decimal.Decimal {
		return decimal.NewFromInt(1)
	})
}

// weightedVote accumulates a weight per distinct move and picks the
// heaviest. Decimal accumulation keeps summation exact, so float noise can
// never flip a close vote between runs.
func weightedVote(ordered []agent.Proposal, weight func(agent.Proposal) decimal.Decimal) (games.Move, error) {
	totals := make(map[string]decimal.Decimal)
	firstIndex := make(map[string]int)
	for _, p := range ordered {
		choice := p.Move.Choice
		totals[choice] = totals[choice].Add(weight(p))
		if _, seen := firstIndex[choice]; !seen {
			firstIndex[choice] = p.AgentIndex
		}
	}

	best := ""
	for choice, total := range totals {
		if best == "" {
			best = choice
			continue
		}
		switch total.Cmp(totals[best]) {
		case 1:
			best = choice
		case 0:
			if firstIndex[choice] < firstIndex[best] {
				best = choice
			}
		}
	}
	if best == "" || totals[best].Sign() <= 0 {
		return games.Move{}, ErrNoConsensus
	}
	return games.Move{Choice: best}, nil
}

// swarmVote runs a bounded fixed-point procedure: each round, every
// proposal adopts the majority position of its ring neighborhood (itself
// plus both neighbors). It stops early once the swarm converges, otherwise
// the final round falls back to a plain majority vote.
func swarmVote(ordered []agent.Proposal, rounds int) (games.Move, error) {
	if rounds <= 0 {
		rounds = defaultSwarmRounds
	}

	choices := make([]string, len(ordered))
	for i, p := range ordered {
		choices[i] = p.Move.Choice
	}

	for r := 0; r < rounds && len(choices) > 2; r++ {
		if converged(choices) {
			break
		}
		next := make([]string, len(choices))
		for i := range choices {
			left := choices[(i+len(choices)-1)%len(choices)]
			right := choices[(i+1)%len(choices)]
			next[i] = neighborhoodMajority(choices[i], left, right)
		}
		choices = next
	}

	if converged(choices) {
		return games.Move{Choice: choices[0]}, nil
	}
	final := make([]agent.Proposal, len(ordered))
	for i, p := range ordered {
		final[i] = p
		final[i].Move = games.Move{Choice: choices[i]}
	}
	return majorityVote(final)
}

func converged(choices []string) bool {
	for _, c := range choices[1:] {
		if c != choices[0] {
			return false
		}
	}
	return true
}

// neighborhoodMajority keeps self on a three-way split.
func neighborhoodMajority(self, left, right string) string {
	if left == right {
		return left
	}
	return self
}

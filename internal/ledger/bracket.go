package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// Bracket is a deterministic single-elimination tournament tree. Entrants
// are paired in the order given: seeds 0 and 1 meet in round 1 slot 0,
// seeds 2 and 3 in slot 1, and so on. Results may be reported in any order;
// a result for a match whose participants are not yet decided is queued and
// applied once its feeder matches resolve.
type Bracket struct {
	mu      sync.Mutex
	rounds  [][]bracketMatch
	queued  map[matchKey]string
	decided int
	total   int
}

type bracketMatch struct {
	a, b   string
	winner string
}

type matchKey struct {
	round, slot int
}

var (
	ErrBadEntrants  = errors.New("bracket: entrant count must be a power of two, at least 2")
	ErrNoSuchMatch  = errors.New("bracket: no such match")
	ErrNotAnEntrant = errors.New("bracket: winner is not a participant of that match")
	ErrAlreadySet   = errors.New("bracket: match already decided")
)

// NewBracket builds a bracket over the entrants in seeding order.
func NewBracket(entrants []string) (*Bracket, error) {
	n := len(entrants)
	if n < 2 || n&(n-1) != 0 {
		return nil, ErrBadEntrants
	}
	seen := make(map[string]bool, n)
	for _, e := range entrants {
		if e == "" || seen[e] {
			return nil, fmt.Errorf("%w: duplicate or empty entrant %q", ErrBadEntrants, e)
		}
		seen[e] = true
	}

	b := &Bracket{queued: make(map[matchKey]string)}
	for size := n / 2; size >= 1; size /= 2 {
		b.rounds = append(b.rounds, make([]bracketMatch, size))
		b.total += size
	}
	for i := 0; i < n; i += 2 {
		b.rounds[0][i/2] = bracketMatch{a: entrants[i], b: entrants[i+1]}
	}
	return b, nil
}

// Rounds reports the number of rounds in the bracket.
func (b *Bracket) Rounds() int { return len(b.rounds) }

// Match returns the participants and winner of a match. Empty participants
// mean the feeder matches have not resolved yet. Rounds and slots are
// zero-based.
func (b *Bracket) Match(round, slot int) (first, second, winner string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if round < 0 || round >= len(b.rounds) || slot < 0 || slot >= len(b.rounds[round]) {
		return "", "", "", ErrNoSuchMatch
	}
	m := b.rounds[round][slot]
	return m.a, m.b, m.winner, nil
}

// Report records the winner of a match. Out-of-order reports are queued
// rather than rejected: reporting a semifinal before its quarterfinals is
// legal, and the result applies as soon as both feeders resolve. Queued
// results are validated at apply time.
func (b *Bracket) Report(round, slot int, winner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if round < 0 || round >= len(b.rounds) || slot < 0 || slot >= len(b.rounds[round]) {
		return ErrNoSuchMatch
	}

	m := &b.rounds[round][slot]
	if m.winner != "" {
		return ErrAlreadySet
	}
	key := matchKey{round, slot}
	if m.a == "" || m.b == "" {
		if _, dup := b.queued[key]; dup {
			return ErrAlreadySet
		}
		b.queued[key] = winner
		return nil
	}
	if err := b.apply(round, slot, winner); err != nil {
		return err
	}
	b.drain()
	return nil
}

// apply sets a decided match's winner and seeds the next round.
// Caller holds the lock and has checked the match is populated and open.
func (b *Bracket) apply(round, slot int, winner string) error {
	m := &b.rounds[round][slot]
	if winner != m.a && winner != m.b {
		return fmt.Errorf("%w: %q vs %q, got %q", ErrNotAnEntrant, m.a, m.b, winner)
	}
	m.winner = winner
	b.decided++
	if round+1 < len(b.rounds) {
		next := &b.rounds[round+1][slot/2]
		if slot%2 == 0 {
			next.a = winner
		} else {
			next.b = winner
		}
	}
	return nil
}

// drain applies queued results whose matches have become reachable, looping
// until a full pass applies nothing. An invalid queued winner is dropped;
// the slot reopens for a correct report.
func (b *Bracket) drain() {
	for {
		applied := false
		for key, winner := range b.queued {
			m := &b.rounds[key.round][key.slot]
			if m.a == "" || m.b == "" || m.winner != "" {
				continue
			}
			delete(b.queued, key)
			if err := b.apply(key.round, key.slot, winner); err == nil {
				applied = true
			}
		}
		if !applied {
			return
		}
	}
}

// Champion returns the tournament winner once the final is decided.
func (b *Bracket) Champion() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	final := b.rounds[len(b.rounds)-1][0]
	return final.winner, final.winner != ""
}

// Pending reports how many matches are still undecided.
func (b *Bracket) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total - b.decided
}

// BracketMatchView is the serializable state of one bracket match. Empty
// participants mean the feeder matches have not resolved yet.
type BracketMatchView struct {
	First  string `json:"first,omitempty"`
	Second string `json:"second,omitempty"`
	Winner string `json:"winner,omitempty"`
}

// BracketView is a full snapshot of the tree, round by round.
type BracketView struct {
	Rounds   [][]BracketMatchView `json:"rounds"`
	Pending  int                  `json:"pending"`
	Champion string               `json:"champion,omitempty"`
}

// View snapshots the bracket for reporting.
func (b *Bracket) View() BracketView {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := BracketView{Rounds: make([][]BracketMatchView, len(b.rounds)), Pending: b.total - b.decided}
	for i, round := range b.rounds {
		v.Rounds[i] = make([]BracketMatchView, len(round))
		for j, m := range round {
			v.Rounds[i][j] = BracketMatchView{First: m.a, Second: m.b, Winner: m.winner}
		}
	}
	v.Champion = b.rounds[len(b.rounds)-1][0].winner
	return v
}

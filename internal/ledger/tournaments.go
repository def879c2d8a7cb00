package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrDuplicateTournament = errors.New("ledger: tournament name already in use")
	ErrNoSuchTournament    = errors.New("ledger: no such tournament")
)

// Tournament pairs a named single-elimination bracket with the game type its
// matches are played under.
type Tournament struct {
	Name      string
	GameType  string
	CreatedAt time.Time

	bracket *Bracket
}

// Bracket exposes the tournament's tree.
func (t *Tournament) Bracket() *Bracket { return t.bracket }

// Tournaments is the in-memory catalog of running brackets. Match results
// flow in through Report; standings and per-match results live in the Store.
type Tournaments struct {
	mu     sync.Mutex
	byName map[string]*Tournament
}

func NewTournaments() *Tournaments {
	return &Tournaments{byName: make(map[string]*Tournament)}
}

// Create opens a tournament over the entrants in seeding order.
func (ts *Tournaments) Create(name, gameType string, entrants []string) (*Tournament, error) {
	if name == "" {
		return nil, errors.New("ledger: tournament needs a name")
	}
	bracket, err := NewBracket(entrants)
	if err != nil {
		return nil, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, dup := ts.byName[name]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTournament, name)
	}
	t := &Tournament{Name: name, GameType: gameType, CreatedAt: time.Now().UTC(), bracket: bracket}
	ts.byName[name] = t
	return t, nil
}

// Get looks a tournament up by name.
func (ts *Tournaments) Get(name string) (*Tournament, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.byName[name]
	return t, ok
}

// Names lists open tournaments.
func (ts *Tournaments) Names() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, 0, len(ts.byName))
	for name := range ts.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Report routes a decided match's winner into the named bracket.
func (ts *Tournaments) Report(name string, round, slot int, winner string) error {
	t, ok := ts.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTournament, name)
	}
	return t.bracket.Report(round, slot, winner)
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"geniusarena/internal/agent"
	"geniusarena/internal/games"
	"geniusarena/internal/player"
	"geniusarena/internal/session"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

// captureSink collects published events and terminal records.
type captureSink struct {
	mu       sync.Mutex
	events   []session.Event
	terminal []session.Event
	forgot   []uuid.UUID
	reports  []string
}

func (c *captureSink) Publish(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) RecordMatch(_ context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminal = append(c.terminal, ev)
	return nil
}

func (c *captureSink) Forget(matchID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgot = append(c.forgot, matchID)
}

func (c *captureSink) forgotten() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.forgot...)
}

func (c *captureSink) Report(name string, round, slot int, winner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, fmt.Sprintf("%s/%d/%d:%s", name, round, slot, winner))
	return nil
}

func (c *captureSink) reported() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reports...)
}

func (c *captureSink) terminals() []session.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Event(nil), c.terminal...)
}

func scriptEntry(id, script string) PlayerEntry {
	return PlayerEntry{
		Spec: player.Spec{
			ID:             id,
			Name:           id,
			Agents:         []agent.Handle{{ID: id + "-agent"}},
			ThinkingBudget: 2 * time.Second,
		},
		Scripts: []string{script},
	}
}

// fixedScript always plays the given choice.
func fixedScript(choice string) string {
	return `function decide(turn) { return ` + `"` + choice + `"` + `; }`
}

func newTestRegistry(t *testing.T, capacity int64, sink *captureSink) *Registry {
	t.Helper()
	r := New(capacity, sink, sink, quiet())
	if err := r.RegisterPlayer(scriptEntry("reds", fixedScript("red"))); err != nil {
		t.Fatalf("register reds: %v", err)
	}
	if err := r.RegisterPlayer(scriptEntry("blues", fixedScript("blue"))); err != nil {
		t.Fatalf("register blues: %v", err)
	}
	return r
}

func waitDone(t *testing.T, r *Registry, id uuid.UUID) {
	t.Helper()
	sess, ok := r.Get(id)
	if !ok {
		t.Fatalf("match %s not found", id)
	}
	select {
	case <-sess.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("match %s never finished", id)
	}
}

func TestCreateRunsMatchToCompletion(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(t, 4, sink)

	id, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:  games.TypeMinority,
		Rounds:    3,
		PlayerIDs: []string{"reds", "blues"},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	waitDone(t, r, id)

	info, ok := r.Info(id)
	if !ok || info.Status != session.StatusCompleted {
		t.Fatalf("match info = %+v, ok=%v", info, ok)
	}
	terminals := sink.terminals()
	if len(terminals) != 1 {
		t.Fatalf("ledger saw %d terminal events, want 1", len(terminals))
	}
	if terminals[0].MatchID != id {
		t.Errorf("terminal event match id = %s, want %s", terminals[0].MatchID, id)
	}
}

func TestCapacityRejectedAtCreation(t *testing.T) {
	sink := &captureSink{}
	r := New(1, sink, sink, quiet())

	// A player that never answers keeps its match running.
	if err := r.RegisterPlayer(scriptEntry("stuck", `function decide(turn) { for(;;){} }`)); err != nil {
		t.Fatalf("register stuck: %v", err)
	}
	if err := r.RegisterPlayer(scriptEntry("reds", fixedScript("red"))); err != nil {
		t.Fatalf("register reds: %v", err)
	}

	first, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:   games.TypeMinority,
		Rounds:     50,
		TurnBudget: 2 * time.Second,
		PlayerIDs:  []string{"stuck", "reds"},
	})
	if err != nil {
		t.Fatalf("first CreateMatch: %v", err)
	}

	_, err = r.CreateMatch(context.Background(), MatchConfig{
		GameType:  games.TypeMinority,
		Rounds:    3,
		PlayerIDs: []string{"reds", "stuck"},
	})
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("second CreateMatch err = %v, want ErrCapacity", err)
	}

	// Freeing the slot re-admits new matches.
	if err := r.Abort(first); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	waitDone(t, r, first)

	second, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:  games.TypeMinority,
		Rounds:    1,
		PlayerIDs: []string{"reds", "stuck"},
	})
	if err != nil {
		t.Fatalf("CreateMatch after abort: %v", err)
	}
	waitDone(t, r, second)
}

func TestCreateValidation(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(t, 4, sink)
	ctx := context.Background()

	if _, err := r.CreateMatch(ctx, MatchConfig{GameType: "chess", Rounds: 3, PlayerIDs: []string{"reds", "blues"}}); err == nil {
		t.Error("unknown game type accepted")
	}
	if _, err := r.CreateMatch(ctx, MatchConfig{GameType: games.TypeMinority, Rounds: 3, PlayerIDs: []string{"reds"}}); err == nil {
		t.Error("single-player match accepted")
	}
	// A rounds-less match would be terminal before its first turn; it is
	// rejected at creation instead.
	if _, err := r.CreateMatch(ctx, MatchConfig{GameType: games.TypeMinority, PlayerIDs: []string{"reds", "blues"}}); err == nil {
		t.Error("zero-round match accepted")
	}
	if _, err := r.CreateMatch(ctx, MatchConfig{GameType: games.TypeMinority, Rounds: -1, PlayerIDs: []string{"reds", "blues"}}); err == nil {
		t.Error("negative-round match accepted")
	}
	_, err := r.CreateMatch(ctx, MatchConfig{GameType: games.TypeMinority, Rounds: 3, PlayerIDs: []string{"reds", "ghost"}})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("err = %v, want ErrUnknownPlayer", err)
	}
}

func TestRegisterPlayerValidation(t *testing.T) {
	r := New(1, nil, nil, quiet())

	if err := r.RegisterPlayer(PlayerEntry{}); err == nil {
		t.Error("empty entry accepted")
	}
	if err := r.RegisterPlayer(PlayerEntry{Spec: player.Spec{ID: "noagents"}}); err == nil {
		t.Error("agent-less spec accepted")
	}
	bad := scriptEntry("bad", `this is not javascript{{{`)
	if err := r.RegisterPlayer(bad); err == nil {
		t.Error("broken script accepted at registration")
	}

	good := scriptEntry("good", fixedScript("red"))
	if err := r.RegisterPlayer(good); err != nil {
		t.Fatalf("register good: %v", err)
	}
	if err := r.RegisterPlayer(good); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate register err = %v, want ErrDuplicateID", err)
	}
	if got := len(r.ListPlayers()); got != 1 {
		t.Errorf("catalog has %d players, want 1", got)
	}
}

func TestAbortUnknownMatch(t *testing.T) {
	r := New(1, nil, nil, quiet())
	if err := r.Abort(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndLive(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(t, 4, sink)

	id, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:  games.TypeDilemma,
		Rounds:    2,
		PlayerIDs: []string{"reds", "blues"},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	waitDone(t, r, id)

	list := r.List()
	if len(list) != 1 || list[0].ID != id || list[0].GameType != games.TypeDilemma {
		t.Fatalf("List() = %+v", list)
	}
	if live := r.Live(); live != 0 {
		t.Errorf("Live() = %d after completion, want 0", live)
	}
	if _, ok := r.State(id); !ok {
		t.Error("State() not available for finished match")
	}
}

func TestShutdownAbortsRunningMatches(t *testing.T) {
	sink := &captureSink{}
	r := New(2, sink, sink, quiet())
	if err := r.RegisterPlayer(scriptEntry("stuck", `function decide(turn) { for(;;){} }`)); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPlayer(scriptEntry("reds", fixedScript("red"))); err != nil {
		t.Fatal(err)
	}

	id, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:   games.TypeMinority,
		Rounds:     100,
		TurnBudget: 5 * time.Second,
		PlayerIDs:  []string{"stuck", "reds"},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	sess, _ := r.Get(id)
	if st := sess.Status(); st != session.StatusAborted {
		t.Errorf("status after shutdown = %s, want aborted", st)
	}
}

func TestFinishedMatchIsPrunedAfterRetention(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(t, 4, sink)
	r.SetFinishedRetention(20 * time.Millisecond)

	id, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:  games.TypeMinority,
		Rounds:    1,
		PlayerIDs: []string{"reds", "blues"},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	waitDone(t, r, id)

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, known := r.Info(id)
		if !known {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("finished match never pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}
	var told bool
	for _, f := range sink.forgotten() {
		if f == id {
			told = true
		}
	}
	if !told {
		t.Error("publisher was not told to forget the pruned match")
	}
}

func TestTournamentWinnerRoutedToBracket(t *testing.T) {
	sink := &captureSink{}
	r := New(4, sink, sink, quiet())
	r.SetWinnerReporter(sink)
	if err := r.RegisterPlayer(scriptEntry("sharks", fixedScript("defect"))); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPlayer(scriptEntry("doves", fixedScript("cooperate"))); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPlayer(scriptEntry("owls", fixedScript("cooperate"))); err != nil {
		t.Fatal(err)
	}

	id, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:   games.TypeDilemma,
		Rounds:     2,
		PlayerIDs:  []string{"sharks", "doves"},
		Tournament: &TournamentSlot{Name: "cup", Round: 0, Slot: 0},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	waitDone(t, r, id)

	deadline := time.Now().Add(5 * time.Second)
	for len(sink.reported()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("winner never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.reported(); got[0] != "cup/0/0:sharks" {
		t.Errorf("report = %q, want cup/0/0:sharks", got[0])
	}

	// A drawn match leaves the slot open.
	drawn, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:   games.TypeDilemma,
		Rounds:     2,
		PlayerIDs:  []string{"doves", "owls"},
		Tournament: &TournamentSlot{Name: "cup", Round: 0, Slot: 1},
	})
	if err != nil {
		t.Fatalf("CreateMatch drawn: %v", err)
	}
	waitDone(t, r, drawn)
	if got := sink.reported(); len(got) != 1 {
		t.Errorf("reports after draw = %v, want just the first", got)
	}
}

func TestTournamentMatchNeedsReporter(t *testing.T) {
	sink := &captureSink{}
	r := newTestRegistry(t, 4, sink)
	_, err := r.CreateMatch(context.Background(), MatchConfig{
		GameType:   games.TypeMinority,
		Rounds:     1,
		PlayerIDs:  []string{"reds", "blues"},
		Tournament: &TournamentSlot{Name: "cup"},
	})
	if err == nil {
		t.Error("tournament match accepted without a reporter")
	}
}

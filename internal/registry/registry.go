// Package registry owns the lifecycle of matches: it keeps the catalog of
// registered players, enforces the concurrent-match ceiling, and routes
// every match's event stream to the broadcaster and its terminal event to
// the ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"geniusarena/internal/agent"
	"geniusarena/internal/games"
	"geniusarena/internal/player"
	"geniusarena/internal/session"
)

var (
	// ErrCapacity is returned synchronously at creation when the server is
	// at its concurrent-match ceiling. A running match is never evicted.
	ErrCapacity = errors.New("registry: at concurrent match capacity")

	ErrNotFound      = errors.New("registry: no such match")
	ErrUnknownPlayer = errors.New("registry: player not registered")
	ErrDuplicateID   = errors.New("registry: player id already registered")
)

// Recorder receives the single terminal event of each match.
type Recorder interface {
	RecordMatch(ctx context.Context, ev session.Event) error
}

// Publisher receives every match event, in order.
type Publisher interface {
	Publish(ev session.Event)
}

// PlayerEntry is a catalog entry: the match-time spec plus optional
// per-agent strategy scripts. An agent with a script ignores its endpoint;
// an agent without one is called over HTTP.
type PlayerEntry struct {
	Spec    player.Spec
	Scripts []string
}

// TournamentSlot binds a match to one slot of a named bracket. The winner is
// reported there when the match ends.
type TournamentSlot struct {
	Name  string
	Round int
	Slot  int
}

// MatchConfig is everything needed to start one match.
type MatchConfig struct {
	GameType   games.GameType
	Rounds     int
	Seed       int64
	TurnBudget time.Duration
	PlayerIDs  []string
	Tournament *TournamentSlot
}

// MatchInfo is the list/status view of a match.
type MatchInfo struct {
	ID        uuid.UUID      `json:"id"`
	GameType  games.GameType `json:"game_type"`
	Players   []string       `json:"players"`
	Status    session.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

type match struct {
	sess       *session.Session
	gameType   games.GameType
	players    []string
	createdAt  time.Time
	cancel     context.CancelFunc
	tournament *TournamentSlot
}

type Registry struct {
	sem        *semaphore.Weighted
	recorder   Recorder
	pub        Publisher
	client     *http.Client
	logger     *log.Logger
	turnBudget time.Duration
	reporter   WinnerReporter

	mu      sync.Mutex
	matches map[uuid.UUID]*match
	players map[string]PlayerEntry

	retention time.Duration
}

const (
	defaultTurnBudget = 30 * time.Second

	// Finished matches stay queryable for this long, then the registry
	// drops its entry and tells the broadcaster to drop the feed. Results
	// outlive retention in the ledger.
	defaultFinishedRetention = 5 * time.Minute
)

// Forgetter is implemented by publishers that keep per-match history and
// want to be told when a match is pruned.
type Forgetter interface {
	Forget(matchID uuid.UUID)
}

// WinnerReporter routes decided tournament matches into their bracket.
type WinnerReporter interface {
	Report(name string, round, slot int, winner string) error
}

// New builds a registry with a hard ceiling on simultaneously running
// matches. recorder and pub may be nil in tests.
func New(maxConcurrent int64, recorder Recorder, pub Publisher, logger *log.Logger) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		sem:        semaphore.NewWeighted(maxConcurrent),
		recorder:   recorder,
		pub:        pub,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		turnBudget: defaultTurnBudget,
		retention:  defaultFinishedRetention,
		matches:    make(map[uuid.UUID]*match),
		players:    make(map[string]PlayerEntry),
	}
}

// SetWinnerReporter attaches the bracket catalog. Call before serving
// traffic; without one, tournament-bound match creation is rejected.
func (r *Registry) SetWinnerReporter(wr WinnerReporter) {
	r.reporter = wr
}

// SetFinishedRetention overrides how long finished matches stay queryable
// before they are pruned. Call before serving traffic.
func (r *Registry) SetFinishedRetention(d time.Duration) {
	if d > 0 {
		r.retention = d
	}
}

// SetDefaultTurnBudget overrides the per-turn budget applied to matches
// created without one. Call before serving traffic.
func (r *Registry) SetDefaultTurnBudget(d time.Duration) {
	if d > 0 {
		r.turnBudget = d
	}
}

// --------- Player catalog ---------

// RegisterPlayer adds a player to the catalog. Scripts are compiled here so
// a broken strategy script fails registration, not a live match.
func (r *Registry) RegisterPlayer(entry PlayerEntry) error {
	spec := entry.Spec
	if spec.ID == "" {
		return errors.New("registry: player spec needs an id")
	}
	if len(spec.Agents) == 0 {
		return fmt.Errorf("registry: player %q has no agents", spec.ID)
	}
	if spec.Team() && !spec.Strategy.Valid() {
		return fmt.Errorf("registry: team player %q has invalid strategy %q", spec.ID, spec.Strategy.Kind)
	}
	if len(entry.Scripts) != 0 && len(entry.Scripts) != len(spec.Agents) {
		return fmt.Errorf("registry: player %q has %d agents but %d scripts", spec.ID, len(spec.Agents), len(entry.Scripts))
	}
	for i, src := range entry.Scripts {
		if src == "" {
			continue
		}
		if _, err := agent.NewScriptGateway(spec.Agents[i], src); err != nil {
			return fmt.Errorf("registry: player %q agent %d: %w", spec.ID, i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.players[spec.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, spec.ID)
	}
	r.players[spec.ID] = entry
	return nil
}

// Player returns a catalog entry.
func (r *Registry) Player(id string) (PlayerEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[id]
	return e, ok
}

// ListPlayers returns catalog entries sorted by id.
func (r *Registry) ListPlayers() []PlayerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PlayerEntry, 0, len(r.players))
	for _, e := range r.players {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.ID < out[j].Spec.ID })
	return out
}

// --------- Matches ---------

// CreateMatch starts a match between registered players. The capacity check
// happens here, before any resources are built; once running, a match keeps
// its slot until it terminates.
func (r *Registry) CreateMatch(ctx context.Context, cfg MatchConfig) (uuid.UUID, error) {
	engine, ok := games.Get(cfg.GameType)
	if !ok {
		return uuid.Nil, fmt.Errorf("registry: unknown game type %q", cfg.GameType)
	}
	if cfg.Rounds <= 0 {
		return uuid.Nil, fmt.Errorf("registry: rounds must be positive, got %d", cfg.Rounds)
	}
	if len(cfg.PlayerIDs) < 2 {
		return uuid.Nil, errors.New("registry: a match needs at least two players")
	}
	if cfg.Tournament != nil && r.reporter == nil {
		return uuid.Nil, errors.New("registry: no tournament reporter attached")
	}

	participants := make([]*player.Player, 0, len(cfg.PlayerIDs))
	names := make([]string, 0, len(cfg.PlayerIDs))
	for _, id := range cfg.PlayerIDs {
		entry, ok := r.Player(id)
		if !ok {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
		}
		p, err := r.buildPlayer(entry)
		if err != nil {
			return uuid.Nil, err
		}
		participants = append(participants, p)
		names = append(names, id)
	}

	if !r.sem.TryAcquire(1) {
		return uuid.Nil, ErrCapacity
	}

	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = r.turnBudget
	}
	id := uuid.New()
	gameCfg := games.Config{Players: names, Rounds: cfg.Rounds, Seed: cfg.Seed}
	sess, err := session.New(id, engine, gameCfg, participants, cfg.TurnBudget, r.sink(), r.logger)
	if err != nil {
		r.sem.Release(1)
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m := &match{sess: sess, gameType: cfg.GameType, players: names, createdAt: time.Now().UTC(), cancel: cancel, tournament: cfg.Tournament}
	r.mu.Lock()
	r.matches[id] = m
	r.mu.Unlock()

	go func() {
		defer cancel()
		defer r.sem.Release(1)
		sess.Run(runCtx)
		time.AfterFunc(r.retention, func() { r.prune(id) })
	}()

	r.logger.Printf("match %s created: %s between %v", id, cfg.GameType, names)
	return id, nil
}

// buildPlayer binds a catalog entry to fresh gateways for one match. Script
// gateways get their own runtime per match; HTTP gateways share the client.
func (r *Registry) buildPlayer(entry PlayerEntry) (*player.Player, error) {
	gateways := make([]agent.Gateway, len(entry.Spec.Agents))
	for i, h := range entry.Spec.Agents {
		if i < len(entry.Scripts) && entry.Scripts[i] != "" {
			g, err := agent.NewScriptGateway(h, entry.Scripts[i])
			if err != nil {
				return nil, fmt.Errorf("registry: player %q agent %d: %w", entry.Spec.ID, i, err)
			}
			gateways[i] = g
			continue
		}
		gateways[i] = agent.NewHTTPGateway(h, r.client)
	}
	return player.New(entry.Spec, gateways, r.logger)
}

// sink fans each event out to the broadcaster and, for the terminal event,
// to the ledger. Recording failures are logged, never fatal to the match.
func (r *Registry) sink() session.Sink {
	return func(ev session.Event) {
		if r.pub != nil {
			r.pub.Publish(ev)
		}
		if ev.Type == session.EventMatchEnded {
			if r.recorder != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := r.recorder.RecordMatch(ctx, ev); err != nil {
					r.logger.Printf("match %s: record result: %v", ev.MatchID, err)
				}
			}
			r.advanceBracket(ev)
		}
	}
}

// advanceBracket reports a tournament-bound match's winner into its bracket
// slot. Draws and aborts leave the slot open for a rematch.
func (r *Registry) advanceBracket(ev session.Event) {
	r.mu.Lock()
	m := r.matches[ev.MatchID]
	r.mu.Unlock()
	if m == nil || m.tournament == nil || r.reporter == nil {
		return
	}
	ended, ok := ev.Payload.(session.MatchEnded)
	if !ok {
		return
	}
	slot := m.tournament
	if ended.Aborted || ended.Outcome.Draw || ended.Outcome.Winner == "" {
		r.logger.Printf("match %s: no winner, bracket %s round %d slot %d stays open", ev.MatchID, slot.Name, slot.Round, slot.Slot)
		return
	}
	if err := r.reporter.Report(slot.Name, slot.Round, slot.Slot, ended.Outcome.Winner); err != nil {
		r.logger.Printf("match %s: bracket %s round %d slot %d: %v", ev.MatchID, slot.Name, slot.Round, slot.Slot, err)
		return
	}
	r.logger.Printf("bracket %s round %d slot %d won by %s", slot.Name, slot.Round, slot.Slot, ended.Outcome.Winner)
}

// prune drops a finished match from the catalog and releases its broadcast
// feed. Spectators still attached keep the feed alive until they drain.
func (r *Registry) prune(id uuid.UUID) {
	r.mu.Lock()
	delete(r.matches, id)
	r.mu.Unlock()
	if f, ok := r.pub.(Forgetter); ok {
		f.Forget(id)
	}
	r.logger.Printf("match %s pruned after retention", id)
}

// Get returns a live or finished match session.
func (r *Registry) Get(id uuid.UUID) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, false
	}
	return m.sess, true
}

// Info returns the status view of one match.
func (r *Registry) Info(id uuid.UUID) (MatchInfo, bool) {
	r.mu.Lock()
	m, ok := r.matches[id]
	r.mu.Unlock()
	if !ok {
		return MatchInfo{}, false
	}
	return r.infoOf(id, m), true
}

// List returns all known matches, newest first.
func (r *Registry) List() []MatchInfo {
	r.mu.Lock()
	snapshot := make(map[uuid.UUID]*match, len(r.matches))
	for id, m := range r.matches {
		snapshot[id] = m
	}
	r.mu.Unlock()

	out := make([]MatchInfo, 0, len(snapshot))
	for id, m := range snapshot {
		out = append(out, r.infoOf(id, m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Registry) infoOf(id uuid.UUID, m *match) MatchInfo {
	return MatchInfo{
		ID:        id,
		GameType:  m.gameType,
		Players:   append([]string(nil), m.players...),
		Status:    m.sess.Status(),
		CreatedAt: m.createdAt,
	}
}

// Abort stops a running match. Idempotent; aborting a finished match is a
// no-op.
func (r *Registry) Abort(id uuid.UUID) error {
	r.mu.Lock()
	m, ok := r.matches[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.sess.Abort()
	return nil
}

// State exposes the current game state of a match, for spectators.
func (r *Registry) State(id uuid.UUID) (games.State, bool) {
	sess, ok := r.Get(id)
	if !ok {
		return games.State{}, false
	}
	return sess.State(), true
}

// Live reports how many matches are currently running.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.matches {
		if st := m.sess.Status(); st == session.StatusPending || st == session.StatusRunning {
			n++
		}
	}
	return n
}

// Shutdown aborts every running match and waits for them to finish.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.matches))
	for _, m := range r.matches {
		sessions = append(sessions, m.sess)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Abort()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

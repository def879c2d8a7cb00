// Package broadcast fans match events out to spectators. Event production
// is never allowed to block on a consumer: a subscriber that cannot keep
// up is disconnected, and the match runs on.
package broadcast

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"geniusarena/internal/session"
)

const (
	// ringSize bounds the per-match history replayed to new subscribers.
	ringSize = 256
	// subscriberBuffer is how far behind a subscriber may fall before it
	// is dropped.
	subscriberBuffer = 64
)

// Subscription is one spectator's view of a match: a snapshot of recent
// events followed by a live tail. Events is closed when the match ends or
// the subscriber falls too far behind.
type Subscription struct {
	Snapshot []session.Event
	Events   <-chan session.Event

	cancel func()
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

type subscriber struct {
	ch chan session.Event
}

type matchFeed struct {
	ring   []session.Event
	ended  bool
	subs   map[int]*subscriber
	nextID int
}

// Broadcaster keeps a bounded ring buffer per match and a set of live
// subscribers.
type Broadcaster struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*matchFeed
	logger  *log.Logger
}

// New builds an empty broadcaster.
func New(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		matches: make(map[uuid.UUID]*matchFeed),
		logger:  logger,
	}
}

func (b *Broadcaster) feed(matchID uuid.UUID) *matchFeed {
	f, ok := b.matches[matchID]
	if !ok {
		f = &matchFeed{subs: make(map[int]*subscriber)}
		b.matches[matchID] = f
	}
	return f
}

// Publish appends the event to the match ring and offers it to every
// subscriber without blocking. Slow subscribers are dropped on the spot.
func (b *Broadcaster) Publish(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.feed(ev.MatchID)
	f.ring = append(f.ring, ev)
	if len(f.ring) > ringSize {
		f.ring = f.ring[len(f.ring)-ringSize:]
	}

	for id, sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Printf("match %s: dropping slow spectator %d", ev.MatchID, id)
			delete(f.subs, id)
			close(sub.ch)
		}
	}

	if ev.Type == session.EventMatchEnded {
		f.ended = true
		for id, sub := range f.subs {
			delete(f.subs, id)
			close(sub.ch)
		}
	}
}

// Subscribe attaches a spectator to a match. The snapshot holds the recent
// event history; the channel delivers everything after it. For a finished
// match the channel is already closed and the snapshot is the full tail.
func (b *Broadcaster) Subscribe(matchID uuid.UUID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.feed(matchID)
	snapshot := append([]session.Event(nil), f.ring...)

	ch := make(chan session.Event, subscriberBuffer)
	if f.ended {
		close(ch)
		return &Subscription{Snapshot: snapshot, Events: ch, cancel: func() {}}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = &subscriber{ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub.ch)
		}
	}
	return &Subscription{Snapshot: snapshot, Events: ch, cancel: cancel}
}

// Forget drops a finished match's history once nothing references it.
func (b *Broadcaster) Forget(matchID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.matches[matchID]; ok && len(f.subs) == 0 {
		delete(b.matches, matchID)
	}
}

package ledger

import (
	"errors"
	"testing"
)

func four() *Bracket {
	b, err := NewBracket([]string{"a", "b", "c", "d"})
	if err != nil {
		panic(err)
	}
	return b
}

func TestBracketSeeding(t *testing.T) {
	b := four()
	if b.Rounds() != 2 {
		t.Fatalf("Rounds() = %d, want 2", b.Rounds())
	}
	first, second, _, err := b.Match(0, 0)
	if err != nil || first != "a" || second != "b" {
		t.Errorf("round 0 slot 0 = %s vs %s, err %v", first, second, err)
	}
	first, second, _, err = b.Match(0, 1)
	if err != nil || first != "c" || second != "d" {
		t.Errorf("round 0 slot 1 = %s vs %s, err %v", first, second, err)
	}
}

func TestBracketInOrder(t *testing.T) {
	b := four()
	if err := b.Report(0, 0, "a"); err != nil {
		t.Fatal(err)
	}
	if err := b.Report(0, 1, "d"); err != nil {
		t.Fatal(err)
	}
	first, second, _, _ := b.Match(1, 0)
	if first != "a" || second != "d" {
		t.Fatalf("final = %s vs %s", first, second)
	}
	if err := b.Report(1, 0, "d"); err != nil {
		t.Fatal(err)
	}
	champ, ok := b.Champion()
	if !ok || champ != "d" {
		t.Errorf("champion = %q, ok=%v", champ, ok)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBracketOutOfOrderResultIsQueued(t *testing.T) {
	b := four()

	// Final reported before either semifinal: queued, not rejected.
	if err := b.Report(1, 0, "a"); err != nil {
		t.Fatalf("early report: %v", err)
	}
	if _, ok := b.Champion(); ok {
		t.Fatal("champion decided before feeders resolved")
	}

	if err := b.Report(0, 1, "c"); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Champion(); ok {
		t.Fatal("champion decided with one feeder open")
	}

	if err := b.Report(0, 0, "a"); err != nil {
		t.Fatal(err)
	}
	champ, ok := b.Champion()
	if !ok || champ != "a" {
		t.Errorf("champion = %q, ok=%v", champ, ok)
	}
}

func TestBracketRejectsNonParticipantWinner(t *testing.T) {
	b := four()
	if err := b.Report(0, 0, "d"); !errors.Is(err, ErrNotAnEntrant) {
		t.Fatalf("err = %v, want ErrNotAnEntrant", err)
	}
}

func TestBracketRejectsDoubleReport(t *testing.T) {
	b := four()
	if err := b.Report(0, 0, "a"); err != nil {
		t.Fatal(err)
	}
	if err := b.Report(0, 0, "b"); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("err = %v, want ErrAlreadySet", err)
	}
}

func TestBracketEntrantValidation(t *testing.T) {
	cases := [][]string{
		nil,
		{"a"},
		{"a", "b", "c"},
		{"a", "a"},
		{"a", ""},
	}
	for _, entrants := range cases {
		if _, err := NewBracket(entrants); !errors.Is(err, ErrBadEntrants) {
			t.Errorf("NewBracket(%v) err = %v, want ErrBadEntrants", entrants, err)
		}
	}
}

func TestBracketEightDeepQueue(t *testing.T) {
	b, err := NewBracket([]string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"})
	if err != nil {
		t.Fatal(err)
	}

	// Report finals-first, then semis, then quarters; everything drains once
	// the quarterfinals land.
	if err := b.Report(2, 0, "p1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Report(1, 0, "p1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Report(1, 1, "p5"); err != nil {
		t.Fatal(err)
	}
	quarters := []struct {
		slot   int
		winner string
	}{{0, "p1"}, {1, "p3"}, {2, "p5"}, {3, "p7"}}
	for _, q := range quarters {
		if err := b.Report(0, q.slot, q.winner); err != nil {
			t.Fatalf("quarter slot %d: %v", q.slot, err)
		}
	}

	champ, ok := b.Champion()
	if !ok || champ != "p1" {
		t.Errorf("champion = %q, ok=%v", champ, ok)
	}
}

func TestBracketNoSuchMatch(t *testing.T) {
	b := four()
	if err := b.Report(5, 0, "a"); !errors.Is(err, ErrNoSuchMatch) {
		t.Errorf("err = %v, want ErrNoSuchMatch", err)
	}
	if _, _, _, err := b.Match(0, 9); !errors.Is(err, ErrNoSuchMatch) {
		t.Errorf("err = %v, want ErrNoSuchMatch", err)
	}
}

package games

import "testing"

func minorityState(t *testing.T, players ...string) (Engine, State) {
	t.Helper()
	g, ok := Get(TypeMinority)
	if !ok {
		t.Fatal("minority game not registered")
	}
	st, err := g.InitialState(Config{Players: players, Rounds: 3})
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	return g, st
}

func TestMinorityOppositePicksScoreNothing(t *testing.T) {
	g, st := minorityState(t, "alpha", "beta")

	// Two players always choosing opposite colors: every round is a 1-1
	// split, no minority exists, and both finish on zero.
	for round := 0; round < 3; round++ {
		st = g.Apply(st, "alpha", Move{Choice: ChoiceRed})
		st = g.Apply(st, "beta", Move{Choice: ChoiceBlue})
		st = g.Resolve(st)
	}

	out, done := g.IsTerminal(st)
	if !done {
		t.Fatal("expected game to be terminal after 3 rounds")
	}
	if !out.Draw {
		t.Errorf("expected draw, got winner %q", out.Winner)
	}
	if st.Scores["alpha"] != 0 || st.Scores["beta"] != 0 {
		t.Errorf("expected final scores (0,0), got (%d,%d)", st.Scores["alpha"], st.Scores["beta"])
	}
}

func TestMinoritySideScores(t *testing.T) {
	g, st := minorityState(t, "a", "b", "c")

	st = g.Apply(st, "a", Move{Choice: ChoiceRed})
	st = g.Apply(st, "b", Move{Choice: ChoiceBlue})
	st = g.Apply(st, "c", Move{Choice: ChoiceBlue})
	st = g.Resolve(st)

	if st.Scores["a"] != 1 {
		t.Errorf("minority player should score 1, got %d", st.Scores["a"])
	}
	if st.Scores["b"] != 0 || st.Scores["c"] != 0 {
		t.Errorf("majority players should score 0, got (%d,%d)", st.Scores["b"], st.Scores["c"])
	}
	if st.Round != 1 {
		t.Errorf("round should advance to 1, got %d", st.Round)
	}
}

func TestMinorityUnanimousPicksScoreNothing(t *testing.T) {
	g, st := minorityState(t, "a", "b")

	st = g.Apply(st, "a", Move{Choice: ChoiceRed})
	st = g.Apply(st, "b", Move{Choice: ChoiceRed})
	st = g.Resolve(st)

	// The empty side is not a minority.
	if st.Scores["a"] != 0 || st.Scores["b"] != 0 {
		t.Errorf("expected no scores on unanimous pick, got (%d,%d)", st.Scores["a"], st.Scores["b"])
	}
}

func TestMinorityValidation(t *testing.T) {
	g, st := minorityState(t, "a", "b")

	if err := g.Validate(st, "a", Move{Choice: "purple"}); err == nil {
		t.Error("expected error for illegal color")
	}
	if err := g.Validate(st, "stranger", Move{Choice: ChoiceRed}); err == nil {
		t.Error("expected error for unseated player")
	}
	if err := g.Validate(st, "a", Move{Choice: ChoiceRed}); err != nil {
		t.Errorf("legal move rejected: %v", err)
	}
}

func TestMinorityStateImmutability(t *testing.T) {
	g, st := minorityState(t, "a", "b")

	next := g.Apply(st, "a", Move{Choice: ChoiceRed})
	if len(st.Pending) != 0 {
		t.Error("Apply mutated the input state")
	}
	if len(next.Pending) != 1 {
		t.Error("Apply did not stage the move on the new state")
	}
}

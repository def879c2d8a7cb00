package games

import (
	"reflect"
	"testing"
)

func TestMazeDeterministicLayout(t *testing.T) {
	g, _ := Get(TypeMaze)
	cfg := Config{Players: []string{"a", "b"}, Rounds: 100, Seed: 42}

	st1, err := g.InitialState(cfg)
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	st2, _ := g.InitialState(cfg)

	m1 := st1.Data.(*MazeData)
	m2 := st2.Data.(*MazeData)
	if !reflect.DeepEqual(m1.Open, m2.Open) {
		t.Error("same seed produced different mazes")
	}

	st3, _ := g.InitialState(Config{Players: []string{"a", "b"}, Rounds: 100, Seed: 43})
	if reflect.DeepEqual(m1.Open, st3.Data.(*MazeData).Open) {
		t.Error("different seeds produced identical mazes")
	}
}

func TestMazeEveryCellReachable(t *testing.T) {
	g, _ := Get(TypeMaze)
	st, err := g.InitialState(Config{Players: []string{"a"}, Rounds: 100, Seed: 7})
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	data := st.Data.(*MazeData)

	// Flood fill from the entrance must reach the exit.
	seen := map[Cell]bool{{X: 1, Y: 1}: true}
	queue := []Cell{{X: 1, Y: 1}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range []string{ChoiceUp, ChoiceDown, ChoiceLeft, ChoiceRight} {
			next := step(cur, c)
			if data.walkable(next) && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	if !seen[data.Exit] {
		t.Error("exit unreachable from entrance")
	}
}

func TestMazeWallMoveIsInvalid(t *testing.T) {
	g, _ := Get(TypeMaze)
	st, err := g.InitialState(Config{Players: []string{"a", "b"}, Rounds: 10, Seed: 1})
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}

	// (1,1) is the top-left open cell: up and left are always border walls.
	if err := g.Validate(st, "a", Move{Choice: ChoiceUp}); err == nil {
		t.Error("expected wall collision moving up from the entrance")
	}
	if err := g.Validate(st, "a", Move{Choice: ChoiceLeft}); err == nil {
		t.Error("expected wall collision moving left from the entrance")
	}

	legal := g.LegalMoves(st, "a")
	if len(legal) == 0 {
		t.Fatal("entrance has no legal moves")
	}
	for _, mv := range legal {
		if err := g.Validate(st, "a", Move{Choice: mv}); err != nil {
			t.Errorf("legal move %q rejected: %v", mv, err)
		}
	}
}

func TestMazeEscapeWins(t *testing.T) {
	g, _ := Get(TypeMaze)
	st, err := g.InitialState(Config{Players: []string{"a", "b"}, Rounds: 1000, Seed: 3})
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}

	// Walk player a along a breadth-first path to the exit while b stays put.
	for i := 0; i < 1000; i++ {
		data := st.Data.(*MazeData)
		if data.Positions["a"] == data.Exit {
			break
		}
		mv := nextStepToward(data, data.Positions["a"], data.Exit)
		if err := g.Validate(st, "a", Move{Choice: mv}); err != nil {
			t.Fatalf("pathfinder produced invalid move %q: %v", mv, err)
		}
		st = g.Apply(st, "a", Move{Choice: mv})
		st = g.Resolve(st)
	}

	out, done := g.IsTerminal(st)
	if !done {
		t.Fatal("expected terminal state after escape")
	}
	if out.Winner != "a" {
		t.Errorf("expected a to win, got %+v", out)
	}
	if st.Scores["a"] != escapeBonus {
		t.Errorf("expected escape bonus %d, got %d", escapeBonus, st.Scores["a"])
	}
}

// nextStepToward returns the first move of a shortest path from src to dst.
func nextStepToward(data *MazeData, src, dst Cell) string {
	type node struct {
		cell  Cell
		first string
	}
	seen := map[Cell]bool{src: true}
	queue := []node{{cell: src}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range []string{ChoiceUp, ChoiceDown, ChoiceLeft, ChoiceRight} {
			next := step(cur.cell, c)
			if !data.walkable(next) || seen[next] {
				continue
			}
			first := cur.first
			if first == "" {
				first = c
			}
			if next == dst {
				return first
			}
			seen[next] = true
			queue = append(queue, node{cell: next, first: first})
		}
	}
	return ChoiceUp
}

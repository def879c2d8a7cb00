package games

import (
	"fmt"
	"math/rand"
	"sort"
)

// MazeGame is a race through a deterministic maze: both players start in
// the same corner and the first to reach the exit wins. The maze is carved
// from the match seed, so identical configs always produce identical walls.
type MazeGame struct{}

// Movement choices.
const (
	ChoiceUp    = "up"
	ChoiceDown  = "down"
	ChoiceLeft  = "left"
	ChoiceRight = "right"
)

const (
	mazeWidth   = 11
	mazeHeight  = 11
	escapeBonus = 10
)

// Cell is a maze coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MazeData is the engine-specific state payload.
type MazeData struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Open      [][]bool        `json:"open"`
	Exit      Cell            `json:"exit"`
	Positions map[string]Cell `json:"positions"`
	Steps     map[string]int  `json:"steps"`
	Escaped   map[string]int  `json:"escaped,omitempty"`
}

func (d *MazeData) clone() *MazeData {
	out := &MazeData{
		Width:     d.Width,
		Height:    d.Height,
		Open:      make([][]bool, len(d.Open)),
		Exit:      d.Exit,
		Positions: make(map[string]Cell, len(d.Positions)),
		Steps:     make(map[string]int, len(d.Steps)),
		Escaped:   make(map[string]int, len(d.Escaped)),
	}
	for y, row := range d.Open {
		out.Open[y] = append([]bool(nil), row...)
	}
	for k, v := range d.Positions {
		out.Positions[k] = v
	}
	for k, v := range d.Steps {
		out.Steps[k] = v
	}
	for k, v := range d.Escaped {
		out.Escaped[k] = v
	}
	return out
}

// Type returns the game identifier.
func (g *MazeGame) Type() GameType {
	return TypeMaze
}

// InitialState carves the maze from the config seed and seats the players
// at the entrance.
func (g *MazeGame) InitialState(cfg Config) (State, error) {
	data := &MazeData{
		Width:     mazeWidth,
		Height:    mazeHeight,
		Open:      carveMaze(mazeWidth, mazeHeight, cfg.Seed),
		Exit:      Cell{X: mazeWidth - 2, Y: mazeHeight - 2},
		Positions: make(map[string]Cell, len(cfg.Players)),
		Steps:     make(map[string]int, len(cfg.Players)),
		Escaped:   make(map[string]int),
	}
	st := State{
		Type:      TypeMaze,
		MaxRounds: cfg.Rounds,
		Players:   append([]string(nil), cfg.Players...),
		Scores:    make(map[string]int, len(cfg.Players)),
		Pending:   make(map[string]Move),
		Data:      data,
	}
	for _, p := range cfg.Players {
		st.Scores[p] = 0
		data.Positions[p] = Cell{X: 1, Y: 1}
		data.Steps[p] = 0
	}
	return st, nil
}

// carveMaze produces a perfect maze on an odd-sized grid via randomized
// depth-first search. Every odd cell is reachable from (1,1).
func carveMaze(width, height int, seed int64) [][]bool {
	rng := rand.New(rand.NewSource(seed))
	open := make([][]bool, height)
	for y := range open {
		open[y] = make([]bool, width)
	}

	type point struct{ x, y int }
	stack := []point{{1, 1}}
	open[1][1] = true
	dirs := []point{{0, -2}, {0, 2}, {-2, 0}, {2, 0}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		// Shuffle candidate directions with the seeded source.
		order := rng.Perm(len(dirs))
		carved := false
		for _, i := range order {
			nx, ny := cur.x+dirs[i].x, cur.y+dirs[i].y
			if nx <= 0 || ny <= 0 || nx >= width-1 || ny >= height-1 || open[ny][nx] {
				continue
			}
			open[ny][nx] = true
			open[cur.y+dirs[i].y/2][cur.x+dirs[i].x/2] = true
			stack = append(stack, point{nx, ny})
			carved = true
			break
		}
		if !carved {
			stack = stack[:len(stack)-1]
		}
	}
	return open
}

func step(pos Cell, choice string) Cell {
	switch choice {
	case ChoiceUp:
		pos.Y--
	case ChoiceDown:
		pos.Y++
	case ChoiceLeft:
		pos.X--
	case ChoiceRight:
		pos.X++
	}
	return pos
}

func (d *MazeData) walkable(pos Cell) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < d.Width && pos.Y < d.Height && d.Open[pos.Y][pos.X]
}

// Validate rejects moves into walls or off the grid.
func (g *MazeGame) Validate(st State, playerID string, mv Move) error {
	if err := checkChoice(st, playerID, mv.Choice, ChoiceUp, ChoiceDown, ChoiceLeft, ChoiceRight); err != nil {
		return err
	}
	data := st.Data.(*MazeData)
	if target := step(data.Positions[playerID], mv.Choice); !data.walkable(target) {
		return fmt.Errorf("move %s from (%d,%d) hits a wall", mv.Choice, data.Positions[playerID].X, data.Positions[playerID].Y)
	}
	return nil
}

// Apply stages the player's step for the open round.
func (g *MazeGame) Apply(st State, playerID string, mv Move) State {
	return stage(st, playerID, mv)
}

// Resolve walks each staged player and credits the escape bonus on
// reaching the exit.
func (g *MazeGame) Resolve(st State) State {
	data := st.Data.(*MazeData).clone()
	deltas := make(map[string]int)
	for p, mv := range st.Pending {
		if _, done := data.Escaped[p]; done {
			continue
		}
		data.Positions[p] = step(data.Positions[p], mv.Choice)
		data.Steps[p]++
		if data.Positions[p] == data.Exit {
			data.Escaped[p] = st.Round
			deltas[p] = escapeBonus
		}
	}
	out := closeRound(st, deltas)
	out.Data = data
	return out
}

// IsTerminal ends the race on the first escape, or after the configured
// rounds with proximity to the exit as the tie-break.
func (g *MazeGame) IsTerminal(st State) (Outcome, bool) {
	data := st.Data.(*MazeData)
	if len(data.Escaped) > 0 {
		return g.escapeOutcome(data), true
	}
	if st.Round < st.MaxRounds {
		return Outcome{}, false
	}

	// Nobody escaped: closest to the exit wins.
	best, bestDist := "", -1
	tied := false
	for _, p := range st.Players {
		d := manhattan(data.Positions[p], data.Exit)
		switch {
		case bestDist < 0 || d < bestDist:
			best, bestDist, tied = p, d, false
		case d == bestDist:
			tied = true
		}
	}
	if tied {
		return Outcome{Draw: true, Reason: "rounds exhausted"}, true
	}
	return Outcome{Winner: best, Reason: "closest to exit"}, true
}

// escapeOutcome ranks escapees by round, then by steps taken.
func (g *MazeGame) escapeOutcome(data *MazeData) Outcome {
	best := ""
	tied := false
	for _, p := range sortedKeys(data.Escaped) {
		if best == "" {
			best = p
			continue
		}
		switch {
		case data.Escaped[p] != data.Escaped[best]:
			if data.Escaped[p] < data.Escaped[best] {
				best, tied = p, false
			}
		case data.Steps[p] < data.Steps[best]:
			best, tied = p, false
		case data.Steps[p] == data.Steps[best]:
			tied = true
		}
	}
	if tied {
		return Outcome{Draw: true, Reason: "simultaneous escape"}
	}
	return Outcome{Winner: best, Reason: "escaped the maze"}
}

func manhattan(a, b Cell) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Score returns the cumulative per-player points for the ledger.
func (g *MazeGame) Score(st State, out Outcome) map[string]int {
	return finalScores(st)
}

// LegalMoves lists the directions not blocked by a wall.
func (g *MazeGame) LegalMoves(st State, playerID string) []string {
	data, ok := st.Data.(*MazeData)
	if !ok {
		return nil
	}
	var moves []string
	for _, c := range []string{ChoiceUp, ChoiceDown, ChoiceLeft, ChoiceRight} {
		if data.walkable(step(data.Positions[playerID], c)) {
			moves = append(moves, c)
		}
	}
	return moves
}

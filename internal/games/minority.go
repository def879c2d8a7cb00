package games

// MinorityGame implements the minority-wins voting game: each round every
// player picks red or blue, and the strictly smaller non-empty side scores.
type MinorityGame struct{}

const (
	ChoiceRed  = "red"
	ChoiceBlue = "blue"
)

// Type returns the game identifier.
func (g *MinorityGame) Type() GameType {
	return TypeMinority
}

// InitialState builds the round-zero state.
func (g *MinorityGame) InitialState(cfg Config) (State, error) {
	st := State{
		Type:      TypeMinority,
		MaxRounds: cfg.Rounds,
		Players:   append([]string(nil), cfg.Players...),
		Scores:    make(map[string]int, len(cfg.Players)),
		Pending:   make(map[string]Move),
	}
	for _, p := range cfg.Players {
		st.Scores[p] = 0
	}
	return st, nil
}

// Validate checks the move is a legal color pick.
func (g *MinorityGame) Validate(st State, playerID string, mv Move) error {
	return checkChoice(st, playerID, mv.Choice, ChoiceRed, ChoiceBlue)
}

// Apply stages the player's pick for the open round.
func (g *MinorityGame) Apply(st State, playerID string, mv Move) State {
	return stage(st, playerID, mv)
}

// Resolve scores the round: +1 for each player on the minority side. A tie
// or an empty side means there is no minority and nobody scores.
func (g *MinorityGame) Resolve(st State) State {
	red, blue := 0, 0
	for _, mv := range st.Pending {
		if mv.Choice == ChoiceRed {
			red++
		} else {
			blue++
		}
	}

	minority := ""
	switch {
	case red > 0 && red < blue:
		minority = ChoiceRed
	case blue > 0 && blue < red:
		minority = ChoiceBlue
	}

	deltas := make(map[string]int)
	for p, mv := range st.Pending {
		if minority != "" && mv.Choice == minority {
			deltas[p] = 1
		}
	}
	return closeRound(st, deltas)
}

// IsTerminal ends the game after the configured rounds.
func (g *MinorityGame) IsTerminal(st State) (Outcome, bool) {
	if st.Round < st.MaxRounds {
		return Outcome{}, false
	}
	return leader(st, "rounds complete"), true
}

// Score returns the cumulative per-player points for the ledger.
func (g *MinorityGame) Score(st State, out Outcome) map[string]int {
	return finalScores(st)
}

// LegalMoves lists the color choices.
func (g *MinorityGame) LegalMoves(st State, playerID string) []string {
	return []string{ChoiceRed, ChoiceBlue}
}

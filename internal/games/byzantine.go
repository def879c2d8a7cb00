package games

// ByzantineGame is a consensus simulation: generals independently choose to
// attack or retreat, and only a coordinated decision pays. A lone attacker
// is punished for acting without support.
type ByzantineGame struct{}

const (
	ChoiceAttack  = "attack"
	ChoiceRetreat = "retreat"
)

// Payoffs per round.
const (
	payoffCoordinatedAttack  = 2
	payoffCoordinatedRetreat = 1
	payoffFailedAttack       = -1
)

// Type returns the game identifier.
func (g *ByzantineGame) Type() GameType {
	return TypeByzantine
}

// InitialState builds the round-zero state.
func (g *ByzantineGame) InitialState(cfg Config) (State, error) {
	st := State{
		Type:      TypeByzantine,
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

// Validate checks the move is a legal order.
func (g *ByzantineGame) Validate(st State, playerID string, mv Move) error {
	return checkChoice(st, playerID, mv.Choice, ChoiceAttack, ChoiceRetreat)
}

// Apply stages the player's order for the open round.
func (g *ByzantineGame) Apply(st State, playerID string, mv Move) State {
	return stage(st, playerID, mv)
}

// Resolve scores the round. Unanimity requires an order from every seated
// general; a missing order breaks consensus like a disagreeing one.
func (g *ByzantineGame) Resolve(st State) State {
	attackers, retreaters := 0, 0
	for _, mv := range st.Pending {
		if mv.Choice == ChoiceAttack {
			attackers++
		} else {
			retreaters++
		}
	}
	unanimous := len(st.Pending) == len(st.Players) && (attackers == 0 || retreaters == 0)

	deltas := make(map[string]int)
	for p, mv := range st.Pending {
		switch {
		case unanimous && mv.Choice == ChoiceAttack:
			deltas[p] = payoffCoordinatedAttack
		case unanimous:
			deltas[p] = payoffCoordinatedRetreat
		case mv.Choice == ChoiceAttack:
			deltas[p] = payoffFailedAttack
		}
	}
	return closeRound(st, deltas)
}

// IsTerminal ends the game after the configured rounds.
func (g *ByzantineGame) IsTerminal(st State) (Outcome, bool) {
	if st.Round < st.MaxRounds {
		return Outcome{}, false
	}
	return leader(st, "rounds complete"), true
}

// Score returns the cumulative per-player points for the ledger.
func (g *ByzantineGame) Score(st State, out Outcome) map[string]int {
	return finalScores(st)
}

// LegalMoves lists the orders.
func (g *ByzantineGame) LegalMoves(st State, playerID string) []string {
	return []string{ChoiceAttack, ChoiceRetreat}
}

package games

// DilemmaGame is the iterated prisoner's dilemma with the classic payoff
// matrix: mutual cooperation (3,3), mutual defection (1,1), and a sucker's
// payoff of (0,5) when only one side cooperates.
type DilemmaGame struct{}

const (
	ChoiceCooperate = "cooperate"
	ChoiceDefect    = "defect"
)

// Type returns the game identifier.
func (g *DilemmaGame) Type() GameType {
	return TypeDilemma
}

// InitialState builds the round-zero state.
func (g *DilemmaGame) InitialState(cfg Config) (State, error) {
	st := State{
		Type:      TypeDilemma,
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

// Validate checks the move is cooperate or defect.
func (g *DilemmaGame) Validate(st State, playerID string, mv Move) error {
	return checkChoice(st, playerID, mv.Choice, ChoiceCooperate, ChoiceDefect)
}

// Apply stages the player's move for the open round.
func (g *DilemmaGame) Apply(st State, playerID string, mv Move) State {
	return stage(st, playerID, mv)
}

func dilemmaPayoff(mine, theirs string) int {
	switch {
	case mine == ChoiceCooperate && theirs == ChoiceCooperate:
		return 3
	case mine == ChoiceCooperate && theirs == ChoiceDefect:
		return 0
	case mine == ChoiceDefect && theirs == ChoiceCooperate:
		return 5
	default:
		return 1
	}
}

// Resolve pays each pair of staged moves. A round with a missing move pays
// nobody: the dilemma needs both answers to mean anything.
func (g *DilemmaGame) Resolve(st State) State {
	deltas := make(map[string]int)
	if len(st.Pending) == len(st.Players) {
		for i, a := range st.Players {
			for _, b := range st.Players[i+1:] {
				deltas[a] += dilemmaPayoff(st.Pending[a].Choice, st.Pending[b].Choice)
				deltas[b] += dilemmaPayoff(st.Pending[b].Choice, st.Pending[a].Choice)
			}
		}
	}
	return closeRound(st, deltas)
}

// IsTerminal ends the game after the configured rounds.
func (g *DilemmaGame) IsTerminal(st State) (Outcome, bool) {
	if st.Round < st.MaxRounds {
		return Outcome{}, false
	}
	return leader(st, "rounds complete"), true
}

// Score returns the cumulative per-player points for the ledger.
func (g *DilemmaGame) Score(st State, out Outcome) map[string]int {
	return finalScores(st)
}

// LegalMoves lists the two classic choices.
func (g *DilemmaGame) LegalMoves(st State, playerID string) []string {
	return []string{ChoiceCooperate, ChoiceDefect}
}

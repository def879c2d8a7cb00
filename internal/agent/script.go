package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"geniusarena/internal/games"
)

// ScriptGateway runs a JavaScript strategy inside a sandboxed goja runtime.
// The script must define decide(turn) returning either a move string or an
// object {move, confidence, reasoning}. Used for house bots and tests where
// a real inference backend would be overkill.
type ScriptGateway struct {
	handle  Handle
	mu      sync.Mutex
	runtime *goja.Runtime
	decide  goja.Callable

	// Log buffer visible to operators.
	logs    []string
	logsMu  sync.Mutex
	maxLogs int
}

const scriptInitTimeout = 2 * time.Second

// NewScriptGateway compiles the strategy source and resolves its decide
// function.
func NewScriptGateway(h Handle, source string) (*ScriptGateway, error) {
	g := &ScriptGateway{
		handle:  h,
		runtime: goja.New(),
		maxLogs: 100,
	}
	g.injectGlobals()

	timer := time.AfterFunc(scriptInitTimeout, func() {
		g.runtime.Interrupt("init timeout")
	})
	_, err := g.runtime.RunString(source)
	timer.Stop()
	g.runtime.ClearInterrupt()
	if err != nil {
		return nil, fmt.Errorf("compile strategy script: %w", err)
	}

	decide, ok := goja.AssertFunction(g.runtime.Get("decide"))
	if !ok {
		return nil, errors.New("strategy script must define decide(turn)")
	}
	g.decide = decide
	return g, nil
}

// injectGlobals registers log and console.log.
func (g *ScriptGateway) injectGlobals() {
	g.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		g.logsMu.Lock()
		if len(g.logs) >= g.maxLogs {
			g.logs = g.logs[1:]
		}
		g.logs = append(g.logs, strings.Join(parts, " "))
		g.logsMu.Unlock()
		return goja.Undefined()
	})

	console := g.runtime.NewObject()
	console.Set("log", g.runtime.Get("log"))
	g.runtime.Set("console", console)
}

// Logs returns a copy of the recent script log lines.
func (g *ScriptGateway) Logs() []string {
	g.logsMu.Lock()
	defer g.logsMu.Unlock()
	return append([]string(nil), g.logs...)
}

// Propose calls decide(turn) under the caller's deadline. The runtime is
// interrupted when the deadline passes, so a looping script cannot stall
// a turn.
func (g *ScriptGateway) Propose(ctx context.Context, turn TurnContext) (Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		timer := time.AfterFunc(time.Until(deadline), func() {
			g.runtime.Interrupt("deadline")
		})
		defer func() {
			timer.Stop()
			g.runtime.ClearInterrupt()
		}()
	}

	val, err := g.decide(goja.Undefined(), g.runtime.ToValue(g.turnObject(turn)))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return Proposal{}, ErrTimeout
		}
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: fmt.Errorf("decide: %w", err)}
	}

	return g.toProposal(turn, val)
}

// turnObject converts the turn context into plain values for the runtime.
func (g *ScriptGateway) turnObject(turn TurnContext) map[string]any {
	var state any
	if len(turn.State) > 0 {
		_ = json.Unmarshal(turn.State, &state)
	}
	peers := make([]map[string]any, 0, len(turn.PeerProposals))
	for _, p := range turn.PeerProposals {
		peers = append(peers, map[string]any{
			"agent_id":   p.AgentID,
			"move":       p.Move.Choice,
			"confidence": p.Confidence,
		})
	}
	return map[string]any{
		"match_id":       turn.MatchID,
		"game_type":      turn.GameType,
		"round":          turn.Round,
		"player_id":      turn.PlayerID,
		"agent_index":    turn.AgentIndex,
		"role":           turn.Role,
		"state":          state,
		"legal_moves":    turn.LegalMoves,
		"peer_proposals": peers,
	}
}

func (g *ScriptGateway) toProposal(turn TurnContext, val goja.Value) (Proposal, error) {
	p := Proposal{
		AgentID:    g.handle.ID,
		AgentIndex: turn.AgentIndex,
		Role:       turn.Role,
		Confidence: 1,
	}
	switch out := val.Export().(type) {
	case string:
		p.Move = games.Move{Choice: out}
	case map[string]any:
		move, _ := out["move"].(string)
		p.Move = games.Move{Choice: move}
		switch c := out["confidence"].(type) {
		case float64:
			p.Confidence = c
		case int64:
			p.Confidence = float64(c)
		}
		if r, ok := out["reasoning"].(string); ok {
			p.Reasoning = r
		}
	default:
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: fmt.Errorf("decide returned %T, want string or object", out)}
	}
	if strings.TrimSpace(p.Move.Choice) == "" {
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: errors.New("decide returned no move")}
	}
	return p, nil
}

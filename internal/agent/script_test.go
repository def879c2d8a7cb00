package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestScriptGatewayDecide(t *testing.T) {
	src := `
		function decide(turn) {
			log("round", turn.round);
			if (turn.round % 2 === 0) {
				return "red";
			}
			return { move: "blue", confidence: 0.75, reasoning: "odd round" };
		}
	`
	g, err := NewScriptGateway(Handle{ID: "bot"}, src)
	if err != nil {
		t.Fatalf("NewScriptGateway: %v", err)
	}

	p, err := g.Propose(context.Background(), TurnContext{Round: 0})
	if err != nil {
		t.Fatalf("Propose round 0: %v", err)
	}
	if p.Move.Choice != "red" || p.Confidence != 1 {
		t.Errorf("round 0: got %+v", p)
	}

	p, err = g.Propose(context.Background(), TurnContext{Round: 1})
	if err != nil {
		t.Fatalf("Propose round 1: %v", err)
	}
	if p.Move.Choice != "blue" || p.Confidence != 0.75 || p.Reasoning != "odd round" {
		t.Errorf("round 1: got %+v", p)
	}

	if logs := g.Logs(); len(logs) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(logs))
	}
}

func TestScriptGatewaySeesState(t *testing.T) {
	src := `
		function decide(turn) {
			return turn.state.scores["me"] > 0 ? "defect" : "cooperate";
		}
	`
	g, err := NewScriptGateway(Handle{ID: "bot"}, src)
	if err != nil {
		t.Fatalf("NewScriptGateway: %v", err)
	}

	state, _ := json.Marshal(map[string]any{"scores": map[string]int{"me": 3}})
	p, err := g.Propose(context.Background(), TurnContext{State: state})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if p.Move.Choice != "defect" {
		t.Errorf("move = %q, want defect", p.Move.Choice)
	}
}

func TestScriptGatewayDeadlineInterrupts(t *testing.T) {
	src := `function decide(turn) { while (true) {} }`
	g, err := NewScriptGateway(Handle{ID: "spinner"}, src)
	if err != nil {
		t.Fatalf("NewScriptGateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = g.Propose(ctx, TurnContext{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("interrupt took %v, should be near the 50ms deadline", elapsed)
	}
}

func TestScriptGatewayRejectsBadScripts(t *testing.T) {
	if _, err := NewScriptGateway(Handle{}, `var x = 1;`); err == nil {
		t.Error("expected error for script without decide")
	}
	if _, err := NewScriptGateway(Handle{}, `function decide( {`); err == nil {
		t.Error("expected error for unparsable script")
	}

	g, err := NewScriptGateway(Handle{}, `function decide(turn) { return 42; }`)
	if err != nil {
		t.Fatalf("NewScriptGateway: %v", err)
	}
	var te *TransportError
	if _, err := g.Propose(context.Background(), TurnContext{}); !errors.As(err, &te) {
		t.Errorf("expected TransportError for non-move result, got %v", err)
	}
}

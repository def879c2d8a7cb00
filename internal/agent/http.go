package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"geniusarena/internal/games"
)

// HTTPGateway calls a model inference endpoint over plain JSON POST.
type HTTPGateway struct {
	handle Handle
	client *http.Client
}

// NewHTTPGateway builds a gateway for one reasoning backend. client may be
// nil to use http.DefaultClient; per-call deadlines come from the caller's
// context, optionally capped by the handle's own timeout.
func NewHTTPGateway(h Handle, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{handle: h, client: client}
}

type proposeRequest struct {
	Model string      `json:"model"`
	Turn  TurnContext `json:"turn"`
}

type proposeResponse struct {
	Move       string  `json:"move"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Propose submits the turn and decodes the backend's move.
func (g *HTTPGateway) Propose(ctx context.Context, turn TurnContext) (Proposal, error) {
	if g.handle.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.handle.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(proposeRequest{Model: g.handle.Model, Turn: turn})
	if err != nil {
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.handle.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		if isDeadline(ctx, err) {
			return Proposal{}, ErrTimeout
		}
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return Proposal{}, &TransportError{
			AgentID: g.handle.ID,
			Err:     fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var out proposeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		if isDeadline(ctx, err) {
			return Proposal{}, ErrTimeout
		}
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(out.Move) == "" {
		return Proposal{}, &TransportError{AgentID: g.handle.ID, Err: errors.New("response missing move")}
	}

	return Proposal{
		AgentID:    g.handle.ID,
		AgentIndex: turn.AgentIndex,
		Role:       turn.Role,
		Move:       games.Move{Choice: out.Move},
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
	}, nil
}

// isDeadline reports whether err was caused by the context deadline rather
// than a genuine transport fault.
func isDeadline(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

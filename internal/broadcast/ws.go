package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"geniusarena/internal/games"
	"geniusarena/internal/session"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// StateFunc resolves a match's current game state for the opening
// snapshot frame.
type StateFunc func(matchID uuid.UUID) (games.State, bool)

// WSHandler serves the spectator WebSocket stream: one state snapshot
// frame, the recent event history, then the live tail.
type WSHandler struct {
	broadcaster *Broadcaster
	state       StateFunc
	upgrader    websocket.Upgrader
	logger      *log.Logger
}

// NewWSHandler builds the spectator handler.
func NewWSHandler(b *Broadcaster, state StateFunc, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		broadcaster: b,
		state:       state,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Spectating is read-only and unauthenticated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type wsFrame struct {
	Type    string         `json:"type"`
	State   *games.State   `json:"state,omitempty"`
	Event   *session.Event `json:"event,omitempty"`
	MatchID string         `json:"match_id,omitempty"`
}

// ServeMatch upgrades the connection and streams the match until it ends
// or the client goes away.
func (h *WSHandler) ServeMatch(w http.ResponseWriter, r *http.Request, matchID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	sub := h.broadcaster.Subscribe(matchID)
	defer sub.Close()

	// Readers only: drain (and discard) client frames so pings and close
	// handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	if st, ok := h.state(matchID); ok {
		if !h.writeFrame(conn, wsFrame{Type: "state_snapshot", MatchID: matchID.String(), State: &st}) {
			return
		}
	}
	for i := range sub.Snapshot {
		if !h.writeFrame(conn, wsFrame{Type: string(sub.Snapshot[i].Type), Event: &sub.Snapshot[i]}) {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match ended"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !h.writeFrame(conn, wsFrame{Type: string(ev.Type), Event: &ev}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeFrame(conn *websocket.Conn, frame wsFrame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Printf("marshal ws frame: %v", err)
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload) == nil
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteWait = 5 * time.Second

var errUnknownCommand = errors.New("unknown command")

// wsMessage goes to the client: type "state" carries a snapshot, "error" a message.
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// wsCommand comes from the client: {"type":"play","cell":4} or {"type":"reset"}.
type wsCommand struct {
	Type string `json:"type"`
	Cell int    `json:"cell"`
}

func stateMessage(ss app.Session) wsMessage {
	b, _ := json.Marshal(newSnapshot(ss))
	return wsMessage{Type: "state", Payload: b}
}

func (h *handlers) socket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ss, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()

	// replies carries command errors from the reader; only this goroutine writes
	replies := make(chan wsMessage, 4)
	go h.readCommands(ctx, cancel, conn, id, replies)

	write := func(msg wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg) == nil
	}
	if !write(stateMessage(*ss)) {
		return
	}
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			cur, ok := h.svc.Get(id)
			if !ok || !write(stateMessage(*cur)) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *handlers) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id string, replies chan<- wsMessage) {
	defer cancel()
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.String("session", id), zap.Error(err))
			}
			return
		}
		var err error
		switch cmd.Type {
		case "play":
			_, err = h.svc.Play(ctx, id, cmd.Cell)
		case "reset":
			_, err = h.svc.NewRound(ctx, id)
		default:
			err = errUnknownCommand
		}
		if err == nil {
			continue
		}
		select {
		case replies <- wsMessage{Type: "error", Error: errorMessage(err)}:
		case <-ctx.Done():
			return
		}
	}
}

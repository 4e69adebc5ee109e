package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

type handlers struct {
	svc       *app.Service
	search    *engine.Searcher
	tpl       *templates
	log       *zap.Logger
	heartbeat time.Duration
}

func (h *handlers) renderBoard(ss app.Session, errMsg string) []byte {
	return renderTemplate(h.tpl.board, "", newBoardData(ss, errMsg))
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.index, "base", nil))
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	ss, err := h.svc.CreateSession(r.Context(), pid)
	if err != nil {
		h.log.Error("create session", zap.Error(err))
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+ss.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	ss, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.game, "base", newBoardData(*ss, "")))
}

// cellFromForm reads "cell" or, failing that, the "r" and "c" grid coordinates.
func cellFromForm(r *http.Request) (int, error) {
	if err := r.ParseForm(); err != nil {
		return -1, fmt.Errorf("parse form: %w", domain.ErrInvalidMove)
	}
	if v := r.Form.Get("cell"); v != "" {
		cell, err := strconv.Atoi(v)
		if err != nil {
			return -1, fmt.Errorf("cell %q: %w", v, domain.ErrInvalidMove)
		}
		return cell, nil
	}
	ri, errR := strconv.Atoi(r.Form.Get("r"))
	ci, errC := strconv.Atoi(r.Form.Get("c"))
	if errR != nil || errC != nil {
		return -1, fmt.Errorf("missing cell: %w", domain.ErrInvalidMove)
	}
	return domain.CellAt(ri, ci)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, app.ErrRoundInProgress):
		return "Finish this round first"
	case errors.Is(err, app.ErrRoundAborted):
		return "Round aborted, starting over"
	case errors.Is(err, domain.ErrGameOver):
		return "Round is over"
	case errors.Is(err, domain.ErrInvalidMove):
		return "Invalid move"
	case errors.Is(err, errUnknownCommand):
		return "Unknown command"
	default:
		return "Something went wrong"
	}
}

// respondBoard renders the fragment after an action. Recoverable errors are
// shown inline with the current board.
func (h *handlers) respondBoard(w http.ResponseWriter, r *http.Request, id string, ss *app.Session, err error) {
	var errMsg string
	status := http.StatusOK
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		errMsg = errorMessage(err)
		if errors.Is(err, app.ErrRoundAborted) {
			status = http.StatusInternalServerError
		}
		if g, ok := h.svc.Get(id); ok {
			ss = g
		}
	}
	if ss == nil {
		http.NotFound(w, r)
		return
	}
	writeHTML(w, status, h.renderBoard(*ss, errMsg))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cell, err := cellFromForm(r)
	var ss *app.Session
	if err == nil {
		ss, err = h.svc.Play(r.Context(), id, cell)
	} else if _, ok := h.svc.Get(id); !ok {
		err = app.ErrNotFound
	}
	h.respondBoard(w, r, id, ss, err)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ss, err := h.svc.NewRound(r.Context(), id)
	h.respondBoard(w, r, id, ss, err)
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			_, _ = io.WriteString(w, "event: board\n")
			writeSSEData(w, b)
			flusher.Flush()
		}
	}
}

// writeSSEData frames b as one event, one data line per input line.
func writeSSEData(w io.Writer, b []byte) {
	start := 0
	for i, c := range b {
		if c == '\n' {
			_, _ = fmt.Fprintf(w, "data: %s\n", b[start:i])
			start = i + 1
		}
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", b[start:])
}

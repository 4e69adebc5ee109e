package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

type botMoveDTO struct {
	Cell      int     `json:"cell"`
	Score     int     `json:"score"`
	Nodes     int64   `json:"nodes"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

type snapshotDTO struct {
	ID       string      `json:"id"`
	Board    string      `json:"board"`
	Turn     string      `json:"turn"`
	Human    string      `json:"human"`
	Bot      string      `json:"bot"`
	First    string      `json:"first"`
	Outcome  string      `json:"outcome"`
	Headline string      `json:"headline"`
	Tally    app.Tally   `json:"tally"`
	LastBot  *botMoveDTO `json:"last_bot,omitempty"`
}

func newSnapshot(ss app.Session) snapshotDTO {
	out := snapshotDTO{
		ID:       ss.ID,
		Board:    ss.Round.Board.String(),
		Turn:     ss.Round.Turn.String(),
		Human:    ss.Round.Human.String(),
		Bot:      ss.Round.Bot.String(),
		First:    ss.First.String(),
		Outcome:  ss.Round.Outcome.String(),
		Headline: app.Headline(ss),
		Tally:    ss.Tally,
	}
	if d := ss.LastBot; d != nil {
		out.LastBot = &botMoveDTO{
			Cell:      d.Cell,
			Score:     d.Score,
			Nodes:     d.Nodes,
			ElapsedMs: float64(d.Elapsed.Microseconds()) / 1000,
		}
	}
	return out
}

type playRequest struct {
	Cell *int `json:"cell"`
}

type analyzeRequest struct {
	Board string `json:"board"`
	Mover string `json:"mover"`
}

type candidateDTO struct {
	Cell  int `json:"cell"`
	Score int `json:"score"`
}

type analyzeResponse struct {
	Board      string         `json:"board"`
	Mover      string         `json:"mover"`
	Best       candidateDTO   `json:"best"`
	Candidates []candidateDTO `json:"candidates"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"internal server error"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	defer r.Body.Close()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrRoundAborted):
		return http.StatusInternalServerError
	case errors.Is(err, app.ErrNotYourTurn), errors.Is(err, app.ErrRoundInProgress), errors.Is(err, domain.ErrGameOver):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoLegalMove), errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidMove):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *handlers) apiGet(w http.ResponseWriter, r *http.Request) {
	ss, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, app.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshot(*ss))
}

func (h *handlers) apiCreate(w http.ResponseWriter, r *http.Request) {
	ss, err := h.svc.CreateSession(r.Context(), ensurePlayerCookie(w, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSnapshot(*ss))
}

func (h *handlers) apiPlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Cell == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cell is required"})
		return
	}
	ss, err := h.svc.Play(r.Context(), chi.URLParam(r, "id"), *req.Cell)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshot(*ss))
}

func (h *handlers) apiReset(w http.ResponseWriter, r *http.Request) {
	ss, err := h.svc.NewRound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshot(*ss))
}

// analyze values every legal cell of an arbitrary position.
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	b, err := domain.ParseBoard(req.Board)
	if err != nil {
		h.writeError(w, err)
		return
	}
	mover, err := domain.ParseMark(req.Mover)
	if err != nil {
		h.writeError(w, err)
		return
	}
	cands, err := h.search.Evaluate(r.Context(), b, mover)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := analyzeResponse{Board: b.String(), Mover: mover.String(), Best: candidateDTO{Cell: -1, Score: engine.Loss - 1}}
	for _, c := range cands {
		dto := candidateDTO{Cell: c.Cell, Score: c.Score}
		resp.Candidates = append(resp.Candidates, dto)
		if c.Score > resp.Best.Score {
			resp.Best = dto
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

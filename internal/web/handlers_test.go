package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := app.NewService(app.WithLogger(log))
	h := NewServer(s, WithLogger(log))
	return s, h
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIndexPage(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<form") || !strings.Contains(body, "action=\"/game\"") {
		t.Fatalf("index should contain create form; got body: %q", body)
	}
}

func TestCreateRedirectsToGame(t *testing.T) {
	svc, h := newTestServer(t)
	req := httptest.NewRequest("POST", "/game", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Result().Header.Get("Location")
	if !strings.HasPrefix(loc, "/game/") {
		t.Fatalf("expected redirect to /game/{id}, got %q", loc)
	}
	var playerID string
	for _, c := range rr.Result().Cookies() {
		if c.Name == playerCookie {
			playerID = c.Value
		}
	}
	if playerID == "" {
		t.Fatalf("expected player_id cookie to be set")
	}
	ss, ok := svc.Get(strings.TrimPrefix(loc, "/game/"))
	if !ok || ss.Player != playerID {
		t.Fatalf("expected session for player %q, got %+v", playerID, ss)
	}
}

func TestGamePageRendersBoardAndSSE(t *testing.T) {
	svc, h := newTestServer(t)
	ss, _ := svc.CreateSession(context.Background(), "p1")

	req := httptest.NewRequest("GET", "/game/"+url.PathEscape(ss.ID), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "hx-ext=\"sse\"") || !strings.Contains(body, "/game/"+ss.ID+"/events") {
		t.Fatalf("expected SSE wiring in page; got body: %q", body)
	}
	if !strings.Contains(body, "<!doctype html>") || !strings.Contains(body, "htmx.org") {
		t.Fatalf("expected full page with htmx; got body: %q", body)
	}
	if strings.Count(body, "name=\"cell\"") != domain.Cells {
		t.Fatalf("expected %d cell forms", domain.Cells)
	}
	if !strings.Contains(body, "Your turn") || !strings.Contains(body, "PLAYER: 0   TIES: 0   BOT: 0") {
		t.Fatalf("expected headline and stats; got body: %q", body)
	}
}

func TestGamePageUnknownID(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/game/nope", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPlayEndpointUpdatesStateAndReturnsFragment(t *testing.T) {
	svc, h := newTestServer(t)
	ss, _ := svc.CreateSession(context.Background(), "p1")

	rr := postForm(h, "/game/"+ss.ID+"/play", url.Values{"cell": {"4"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "id=\"board\"") || !strings.Contains(body, "Bot marks cell") {
		t.Fatalf("expected board fragment with bot move, got %q", body)
	}
	latest, _ := svc.Get(ss.ID)
	if latest.Round.Board.Moves() != 2 || latest.Round.Board[4] != domain.X {
		t.Fatalf("expected human and bot move applied, board=%s", latest.Round.Board)
	}
}

func TestPlayEndpointAcceptsGridCoordinates(t *testing.T) {
	svc, h := newTestServer(t)
	ss, _ := svc.CreateSession(context.Background(), "p1")
	rr := postForm(h, "/game/"+ss.ID+"/play", url.Values{"r": {"2"}, "c": {"1"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	latest, _ := svc.Get(ss.ID)
	if latest.Round.Board[7] != domain.X {
		t.Fatalf("expected X at cell 7, board=%s", latest.Round.Board)
	}
}

func TestPlayEndpointShowsInvalidMove(t *testing.T) {
	svc, h := newTestServer(t)
	ss, _ := svc.CreateSession(context.Background(), "p1")
	postForm(h, "/game/"+ss.ID+"/play", url.Values{"cell": {"0"}})
	before, _ := svc.Get(ss.ID)

	for _, form := range []url.Values{{"cell": {"0"}}, {"cell": {"12"}}, {"cell": {"x"}}, {}} {
		rr := postForm(h, "/game/"+ss.ID+"/play", form)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %v, got %d", form, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Invalid move") {
			t.Fatalf("expected invalid move message for %v, got %q", form, rr.Body.String())
		}
	}
	after, _ := svc.Get(ss.ID)
	if after.Round.Board != before.Round.Board {
		t.Fatalf("invalid moves changed the board")
	}
	rr := postForm(h, "/game/nope/play", url.Values{"cell": {"0"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	svc, h := newTestServer(t)
	ss, _ := svc.CreateSession(context.Background(), "p1")

	rr := postForm(h, "/game/"+ss.ID+"/reset", nil)
	if !strings.Contains(rr.Body.String(), "Finish this round first") {
		t.Fatalf("expected in-progress message, got %q", rr.Body.String())
	}
	for {
		cur, _ := svc.Get(ss.ID)
		if cur.Round.Over() {
			break
		}
		postForm(h, "/game/"+ss.ID+"/play", url.Values{"cell": {strconv.Itoa(cur.Round.Board.EmptyCells()[0])}})
	}
	over, _ := svc.Get(ss.ID)
	if !strings.Contains(string(renderTemplate(loadTemplates().board, "", newBoardData(*over, ""))), "Next round") {
		t.Fatalf("finished board should offer next round")
	}
	rr = postForm(h, "/game/"+ss.ID+"/reset", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	latest, _ := svc.Get(ss.ID)
	if latest.First != app.BotMark || latest.Round.Board.Moves() != 1 {
		t.Fatalf("expected bot-first round with opening move, got first=%v board=%s", latest.First, latest.Round.Board)
	}
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	reqCreate := httptest.NewRequest("POST", "/game", nil)
	rrCreate := httptest.NewRecorder()
	h.ServeHTTP(rrCreate, reqCreate)
	loc := rrCreate.Result().Header.Get("Location")
	if loc == "" {
		t.Fatalf("missing redirect location")
	}
	req := httptest.NewRequest("GET", loc+"/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	ct := rr.Result().Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/event-stream") {
		io.Copy(io.Discard, rr.Result().Body)
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
}

func TestWriteSSEDataSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	writeSSEData(&buf, []byte("<div>\n<p>x</p>\n</div>"))
	want := "data: <div>\ndata: <p>x</p>\ndata: </div>\n\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

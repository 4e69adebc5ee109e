package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/google/uuid"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"iter": func(n int) []int {
			a := make([]int, n)
			for i := range a {
				a[i] = i
			}
			return a
		},
		"cellSymbol": func(m domain.Mark) string { return m.String() },
		"add":        func(a, b int) int { return a + b },
		"mul":        func(a, b int) int { return a * b },
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic Tac Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	// board lives in the base set so the game page can include it
	template.Must(base.New("board").Funcs(funcs()).Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Tic Tac Toe</h1>
<p>You play X against an unbeatable bot.</p>
<form action="/game" method="post"><button>New game</button></form>`))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<div hx-ext="sse" sse-connect="/game/{{.ID}}/events">
  <div id="board-container" sse-swap="board">{{template "board" .}}</div>
</div>`))
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const boardTemplate = `
<div id="board">
  <p class="headline">{{.Headline}}</p>
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  {{range $r := iter 3}}
  <div class="row">
    {{range $c := iter 3}}
      {{$cell := add (mul $r 3) $c}}
      {{$mark := index $.Board $cell}}
      <form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{$.ID}}/play">
        <input type="hidden" name="cell" value="{{$cell}}">
        <button type="submit"{{if or $.Over (ne (cellSymbol $mark) "")}} disabled{{end}}>{{cellSymbol $mark}}</button>
      </form>
    {{end}}
  </div>
  {{end}}
  {{if .BotLine}}<p class="bot">{{.BotLine}}</p>{{end}}
  <p class="stats">{{.Stats}}</p>
  {{if .Over}}
  <form hx-post="/game/{{.ID}}/reset" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{.ID}}/reset">
    <button type="submit">Next round</button>
  </form>
  {{end}}
</div>
`

// boardData feeds the board fragment.
type boardData struct {
	ID       string
	Board    domain.Board
	Over     bool
	Headline string
	Stats    string
	BotLine  string
	Error    string
}

func newBoardData(ss app.Session, errMsg string) boardData {
	return boardData{
		ID:       ss.ID,
		Board:    ss.Round.Board,
		Over:     ss.Round.Over(),
		Headline: app.Headline(ss),
		Stats:    app.StatsLine(ss.Tally),
		BotLine:  app.BotLine(ss),
		Error:    errMsg,
	}
}

const playerCookie = "player_id"

// ensurePlayerCookie returns the player id, setting a fresh one if absent.
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil && c.Value != "" {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: playerCookie, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return v
}

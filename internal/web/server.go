package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

// Option configures the HTTP surface.
type Option func(*handlers)

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option { return func(h *handlers) { h.log = l } }

// WithSearcher sets the engine behind /api/analyze.
func WithSearcher(s *engine.Searcher) Option { return func(h *handlers) { h.search = s } }

// WithHeartbeat sets the SSE and websocket keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *handlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewServer wires routes and returns an http.Handler. It installs the board
// fragment as the service's broadcast payload.
func NewServer(s *app.Service, opts ...Option) http.Handler {
	h := &handlers{svc: s, tpl: loadTemplates(), log: zap.NewNop(), heartbeat: 15 * time.Second}
	for _, o := range opts {
		o(h)
	}
	if h.search == nil {
		h.search = engine.New()
	}
	s.SetRenderer(func(ss app.Session) []byte { return h.renderBoard(ss, "") })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/play", h.play)
		r.Post("/reset", h.reset)
		r.Get("/events", h.events)
		r.Get("/ws", h.socket)
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/game", h.apiCreate)
		r.Get("/game/{id}", h.apiGet)
		r.Post("/game/{id}/play", h.apiPlay)
		r.Post("/game/{id}/reset", h.apiReset)
		r.Post("/analyze", h.analyze)
	})
	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Package server exposes the HTTP API: trigger collect/analyze runs, browse
// posts and leads, draft and advance outreach, and edit runtime settings.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/analyze"
	"github.com/sells-group/social-listener/internal/collect"
	"github.com/sells-group/social-listener/internal/outreach"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/internal/task"
)

// Server holds the wired pipeline pieces behind the HTTP handlers.
type Server struct {
	store     store.Store
	tracker   *task.Tracker
	collector *collect.Runner
	analyzer  *analyze.Runner
	drafter   *outreach.Drafter
}

// New wires a server. The collector and analyzer are long-lived so their
// circuit breakers carry state across runs.
func New(st store.Store, tr *task.Tracker, collector *collect.Runner, analyzer *analyze.Runner, drafter *outreach.Drafter) *Server {
	return &Server{
		store:     st,
		tracker:   tr,
		collector: collector,
		analyzer:  analyzer,
		drafter:   drafter,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/collect", s.handleCollect)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/task-status", s.handleTaskStatus)

		r.Get("/posts", s.handleListPosts)
		r.Delete("/posts/{id}", s.handleDeletePost)
		r.Post("/import", s.handleImport)

		r.Get("/leads", s.handleListLeads)
		r.Get("/leads/{id}", s.handleGetLead)
		r.Put("/leads/{id}/status", s.handleUpdateLeadStatus)

		r.Get("/outreach", s.handleListOutreach)
		r.Put("/outreach/{id}/status", s.handleUpdateOutreachStatus)
		r.Post("/outreach/generate", s.handleGenerateOutreach)
		r.Post("/outreach/send", s.handleSendOutreach)

		r.Get("/stats", s.handleStats)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
	})

	return r
}

// requestLogger logs each request at debug with method, path and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			zap.L().Warn("response encode failed", zap.Error(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

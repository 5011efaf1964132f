package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/storage"
	"github.com/hazz-dev/upnotif/internal/tracker"
)

// HistoryStore defines the storage queries the server needs.
type HistoryStore interface {
	TargetHistory(ctx context.Context, target string, limit, offset int) ([]storage.Check, int, error)
	UptimePercent(ctx context.Context, target string, last int) (float64, error)
	RecentTransitions(ctx context.Context, limit int) ([]storage.Transition, error)
}

// StatusSource exposes the live per-target state.
type StatusSource interface {
	Snapshot() []tracker.Record
}

// Server holds the chi router and its dependencies.
type Server struct {
	store   HistoryStore
	status  StatusSource
	targets []checker.Target
	origins []string
	router  chi.Router
	logger  *zap.Logger
}

// New creates a new Server and registers all routes. Pass nil logger to discard logs.
func New(store HistoryStore, status StatusSource, targets []checker.Target, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		status:  status,
		targets: targets,
		origins: allowedOrigins,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/targets", s.handleListTargets)
	r.Get("/api/targets/history", s.handleTargetHistory)
	r.Get("/api/transitions", s.handleTransitions)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) isTarget(url string) bool {
	for _, t := range s.targets {
		if t.URL == url {
			return true
		}
	}
	return false
}

// queryInt parses an optional non-negative integer parameter, capped at max.
func queryInt(r *http.Request, name string, def, max int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type targetDetail struct {
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	UptimePct   float64    `json:"uptime_percent"`
	LastChecked *time.Time `json:"last_checked"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	records := make(map[string]tracker.Record)
	for _, rec := range s.status.Snapshot() {
		records[rec.Target.URL] = rec
	}

	details := make([]targetDetail, 0, len(s.targets))
	for _, t := range s.targets {
		d := targetDetail{URL: t.URL, Status: "unknown"}
		if rec, ok := records[t.URL]; ok && rec.LastStatus != nil {
			d.Status = string(*rec.LastStatus)
			checked := rec.LastCheckedAt
			d.LastChecked = &checked

			pct, err := s.store.UptimePercent(r.Context(), t.URL, 100)
			if err != nil {
				s.logger.Error("UptimePercent", zap.String("url", t.URL), zap.Error(err))
			}
			d.UptimePct = pct
		}
		details = append(details, d)
	}

	writeJSON(w, http.StatusOK, details)
}

type historyResponse struct {
	Checks []storage.Check `json:"checks"`
	Total  int             `json:"total"`
}

func (s *Server) handleTargetHistory(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	if !s.isTarget(url) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	limit, ok := queryInt(r, "limit", 50, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	offset, ok := queryInt(r, "offset", 0, math.MaxInt)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offset parameter")
		return
	}

	checks, total, err := s.store.TargetHistory(r.Context(), url, limit, offset)
	if err != nil {
		s.logger.Error("TargetHistory", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if checks == nil {
		checks = []storage.Check{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Checks: checks, Total: total})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 50, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	transitions, err := s.store.RecentTransitions(r.Context(), limit)
	if err != nil {
		s.logger.Error("RecentTransitions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if transitions == nil {
		transitions = []storage.Transition{}
	}

	writeJSON(w, http.StatusOK, transitions)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

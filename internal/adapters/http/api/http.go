// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/pagination"
	"github.com/okian/leaderboard/internal/seed"
	"github.com/okian/leaderboard/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)
	Leaderboard(ctx context.Context, q pagination.Query) (pagination.Result, error)
	Get(ctx context.Context, id uint64) (model.ScoreRecord, error)
	ListAll(ctx context.Context) ([]model.ScoreRecord, error)
	ClearAll(ctx context.Context) (int64, error)
	Import(ctx context.Context, key string, subs []model.Submission) (accepted, duplicate bool, err error)
	Populate(ctx context.Context, players int) (seed.Summary, error)
	Ping(ctx context.Context) error
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	adminHandler       *AdminHandler
	limiter            *IPRateLimiter
	maintenance        bool
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxBodyBytes),
		adminHandler:       NewAdminHandler(deps, cfg.populatePlayers, cfg.maxBodyBytes),
		maintenance:        cfg.maintenance,
	}
	if cfg.ratePerSec > 0 {
		s.limiter = NewIPRateLimiter(cfg.ratePerSec, cfg.burst)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	limited := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		if s.limiter == nil {
			return h
		}
		return RateLimitMiddleware(s.limiter, endpoint)(h)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	lb := s.leaderboardHandler
	mux.HandleFunc("POST /api/leaderboard", MetricsMiddleware(limited(lb.HandleSubmit, "submit"), "submit"))
	mux.HandleFunc("GET /api/leaderboard", MetricsMiddleware(lb.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /api/leaderboard/{id}", MetricsMiddleware(lb.HandleGetByID, "get_by_id"))
	mux.HandleFunc("GET /api/leaderboard/all", MetricsMiddleware(lb.HandleListAll, "list_all"))

	admin := s.adminHandler
	if s.maintenance {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			mux.HandleFunc(method+" /api/leaderboard/clear", MetricsMiddleware(admin.HandleClear, "clear"))
			mux.HandleFunc(method+" /api/leaderboard/populate", MetricsMiddleware(admin.HandlePopulate, "populate"))
		}
	}
	mux.HandleFunc("POST /api/leaderboard/import", MetricsMiddleware(limited(admin.HandleImport, "import"), "import"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and message classify picks for err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := classify(err)
	if p.internal {
		logger.Named("api").Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", p.status),
			logger.Error(err))
	}
	writeJSON(w, p.status, errorResponse{Code: p.code, Message: p.message})
}

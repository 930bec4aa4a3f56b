// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/okian/poolscore/internal/adapters/mq/queue"
	"github.com/okian/poolscore/internal/domain/aggregate"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
	"github.com/okian/poolscore/pkg/logger"
)

// Resolver is the winner service as seen by the handlers.
type Resolver interface {
	Resolve(ctx context.Context, scope model.Scope) (winners.Resolution, error)
	Invalidate(ctx context.Context, scope model.Scope) (bool, error)
	Winner(ctx context.Context, scope model.Scope) (*model.WinnerRecord, error)
	Standings(ctx context.Context, scope model.Scope) ([]model.Standing, error)
	Review(ctx context.Context, poolID string, season int) ([]aggregate.Review, error)
}

// Enqueuer accepts background resolution jobs and tracks pending scopes.
type Enqueuer interface {
	SeenAndRecord(ctx context.Context, key string) bool
	Unrecord(ctx context.Context, key string)
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits resolution triggers per client address.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		if r > 0 && burst > 0 {
			s.limiter = NewIPRateLimiter(r, burst)
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPinger adds a readiness check to /healthz.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// Server wires HTTP routes for the business API.
type Server struct {
	resolver Resolver
	enqueuer Enqueuer
	stats    StatsProvider
	pinger   Pinger
	limiter  *IPRateLimiter
	logger   logger.Logger
}

// NewServer creates a new API server.
func NewServer(resolver Resolver, enqueuer Enqueuer, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		resolver: resolver,
		enqueuer: enqueuer,
		stats:    stats,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	return s
}

// Router returns a chi router carrying every route.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

// Register attaches all business routes to r.
func (s *Server) Register(r chi.Router) {
	r.With(MetricsMiddleware("healthz")).Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metricsHandler())
	r.With(MetricsMiddleware("stats")).Get("/stats", s.handleStats)

	r.Route("/pools/{pool}", func(r chi.Router) {
		r.Route("/weeks/{season}/{seasonType}/{week}", func(r chi.Router) {
			s.scopeRoutes(r, "week", weekScope)
		})
		r.Route("/periods/{season}/{period}", func(r chi.Router) {
			s.scopeRoutes(r, "period", periodScope)
		})
		r.Route("/seasons/{season}", func(r chi.Router) {
			s.scopeRoutes(r, "season", seasonScope)
			r.With(MetricsMiddleware("review")).Get("/review", s.handleReview)
		})
		r.With(s.rateLimit, MetricsMiddleware("resolve_async")).Post("/resolve-async", s.handleResolveAsync)
	})
}

// scopeRoutes mounts resolve, invalidate, winner and standings under one
// scope path. Only the mutating routes are rate limited.
func (s *Server) scopeRoutes(r chi.Router, name string, parse scopeParser) {
	limited := r.With(s.rateLimit)
	limited.With(MetricsMiddleware("resolve_"+name)).Post("/resolve", s.handleResolve(parse))
	limited.With(MetricsMiddleware("invalidate_"+name)).Delete("/resolve", s.handleInvalidate(parse))
	r.With(MetricsMiddleware("winner_"+name)).Get("/winner", s.handleWinner(parse))
	r.With(MetricsMiddleware("standings_"+name)).Get("/standings", s.handleStandings(parse))
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return RateLimitMiddleware(s.limiter)(next)
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

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps resolver errors onto status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, winners.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, winners.ErrUnknownPeriod), errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, winners.ErrUpstream):
		s.logger.Error(r.Context(), "upstream failure", logger.String("path", r.URL.Path), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", err)
	default:
		s.logger.Error(r.Context(), "request failed", logger.String("path", r.URL.Path), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

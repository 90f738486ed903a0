// Package httpapi exposes the matchmaking engine over REST. It wires the
// chi router, session authentication, per-user rate limits and the JSON
// handlers for the seeking lifecycle, acceptance handshake, settings and
// match history.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mingle/matchd/internal/history"
	"github.com/mingle/matchd/internal/match"
	"github.com/mingle/matchd/internal/metrics"
	"github.com/mingle/matchd/internal/ratelimit"
	"github.com/mingle/matchd/internal/session"
	"github.com/mingle/matchd/internal/store"
)

// MatchService is the matchmaking facade the handlers drive.
type MatchService interface {
	Start(ctx context.Context, userID int64, settings match.Settings, accelerate bool) (*match.StartResult, error)
	Accelerate(ctx context.Context, userID int64) (*match.StartResult, error)
	Cancel(ctx context.Context, userID int64) error
	Result(ctx context.Context, userID int64) *store.ResultState
	Accept(ctx context.Context, userID int64) (bool, error)
	Reject(ctx context.Context, userID int64) error
	QueueCount(ctx context.Context, userID int64, mine match.Settings) (int, error)
}

// SettingsStore persists each user's durable default match settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID int64) (json.RawMessage, error)
	PutSettings(ctx context.Context, userID int64, settings json.RawMessage) error
}

// HistoryStore reads and prunes durable match history.
type HistoryStore interface {
	List(ctx context.Context, userID int64, limit int) ([]history.Record, error)
	Delete(ctx context.Context, userID, recordID int64) (bool, error)
	DeleteAll(ctx context.Context, userID int64) (int64, error)
}

// SessionResolver maps bearer tokens to sessions.
type SessionResolver interface {
	Get(ctx context.Context, token string) (*session.Session, error)
	Touch(ctx context.Context, token string) error
}

// RateLimiter throttles expensive endpoints per user.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Server holds the handler dependencies.
type Server struct {
	svc       MatchService
	settings  SettingsStore
	histories HistoryStore
	sessions  SessionResolver
	limiter   RateLimiter // may be nil
	startedAt time.Time
}

// NewServer wires the REST surface.
func NewServer(svc MatchService, settings SettingsStore, histories HistoryStore, sessions SessionResolver, limiter RateLimiter) *Server {
	return &Server{
		svc:       svc,
		settings:  settings,
		histories: histories,
		sessions:  sessions,
		limiter:   limiter,
		startedAt: time.Now(),
	}
}

// Routes builds the chi router for the whole API.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	mux.Get("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.Route("/match", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.With(s.rateLimit(ratelimit.RuleStart)).Post("/start", s.handleStart)
		r.With(s.rateLimit(ratelimit.RuleAccelerate)).Post("/accelerate", s.handleAccelerate)
		r.Post("/cancel", s.handleCancel)
		r.With(s.rateLimit(ratelimit.RulePoll)).Get("/result", s.handleResult)
		r.Post("/accept", s.handleAccept)
		r.Post("/reject", s.handleReject)
		r.Get("/queue-count", s.handleQueueCount)

		r.Get("/history", s.handleHistoryList)
		r.Delete("/history/{id}", s.handleHistoryDelete)
		r.Delete("/history", s.handleHistoryDeleteAll)
	})

	return mux
}

// handleHealth responds with the server's liveness status and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

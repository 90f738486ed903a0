package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mingle/matchd/internal/metrics"
	"github.com/mingle/matchd/internal/store"
)

var (
	// ErrNotSeeking is returned when an operation requires a live seeking
	// state and the user has none.
	ErrNotSeeking = errors.New("match: user is not seeking")

	// ErrNoActiveMatch is returned when accept is called without a
	// committed pairing.
	ErrNoActiveMatch = errors.New("match: no active match")
)

// PointsLedger is the external points collaborator, consulted only as a
// balance-check-and-debit call.
type PointsLedger interface {
	Consume(ctx context.Context, userID int64, amount int, reason string) error
}

// HistoryStore is the durable match history collaborator.
type HistoryStore interface {
	HistoryStats
	InsertPair(ctx context.Context, userA, userB int64, score int, isAnonymous bool, roomID string) error
}

// ServiceConfig tunes the seeking lifecycle.
type ServiceConfig struct {
	BaseAccelCost  int           // first acceleration of the day costs this much
	TriggerDelay   time.Duration // delay before the post-enqueue match attempt
	RetriggerAfter time.Duration // min gap before a poll re-triggers an attempt
	AttemptTimeout time.Duration // budget for one background match attempt
}

// DefaultServiceConfig returns the standard tunables.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BaseAccelCost:  50,
		TriggerDelay:   750 * time.Millisecond,
		RetriggerAfter: 10 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Service is the matchmaking facade behind the REST handlers: seeking
// lifecycle, acceleration, result polling and the acceptance handshake.
type Service struct {
	store   *store.Store
	orch    *Orchestrator
	points  PointsLedger
	history HistoryStore
	events  Publisher // may be nil
	cfg     ServiceConfig

	// afterFunc schedules the deferred match trigger; swapped in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewService wires the matchmaking facade.
func NewService(st *store.Store, orch *Orchestrator, points PointsLedger, history HistoryStore, events Publisher, cfg ServiceConfig) *Service {
	if cfg.BaseAccelCost <= 0 {
		cfg.BaseAccelCost = DefaultServiceConfig().BaseAccelCost
	}
	if cfg.TriggerDelay <= 0 {
		cfg.TriggerDelay = DefaultServiceConfig().TriggerDelay
	}
	if cfg.RetriggerAfter <= 0 {
		cfg.RetriggerAfter = DefaultServiceConfig().RetriggerAfter
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultServiceConfig().AttemptTimeout
	}
	return &Service{
		store:     st,
		orch:      orch,
		points:    points,
		history:   history,
		events:    events,
		cfg:       cfg,
		afterFunc: time.AfterFunc,
	}
}

// StartResult is the response to a start or accelerate call.
type StartResult struct {
	EstimatedWaitSeconds int  `json:"estimated_wait_seconds"`
	Accelerated          bool `json:"accelerated"`
	PointsConsumed       int  `json:"points_consumed"`
}

// Start places the user into the waiting pool. With accelerate set, an
// exponentially priced debit is taken first; a failed debit aborts the
// whole call. A deferred match attempt fires shortly after.
func (s *Service) Start(ctx context.Context, userID int64, settings Settings, accelerate bool) (*StartResult, error) {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	pointsConsumed := 0
	priority := 0
	if accelerate {
		cost, newPriority, err := s.debitAcceleration(ctx, userID)
		if err != nil {
			return nil, err
		}
		pointsConsumed = cost
		priority = newPriority
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("match: marshal settings: %w", err)
	}

	now := time.Now()
	seek := &store.SeekingState{
		UserID:            userID,
		Settings:          raw,
		EnqueuedAt:        now,
		LastAttemptAt:     now,
		Accelerated:       accelerate,
		QueueJumpPriority: priority,
	}
	if err := s.store.SetSeeking(ctx, seek); err != nil {
		return nil, fmt.Errorf("match: set seeking state: %w", err)
	}
	if err := s.store.Enqueue(ctx, userID); err != nil {
		return nil, fmt.Errorf("match: enqueue: %w", err)
	}

	s.afterFunc(s.cfg.TriggerDelay, func() {
		s.triggerMatch(userID, settings, accelerate)
	})

	log.Printf("[match] user=%d started seeking mode=%s accelerated=%v", userID, settings.Mode, accelerate)
	return &StartResult{
		EstimatedWaitSeconds: s.estimateWait(ctx),
		Accelerated:          accelerate,
		PointsConsumed:       pointsConsumed,
	}, nil
}

// Accelerate re-prices and re-debits an already-seeking user, then forces
// an immediate, wider match attempt.
func (s *Service) Accelerate(ctx context.Context, userID int64) (*StartResult, error) {
	seek, err := s.store.GetSeeking(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("match: read seeking state: %w", err)
	}
	if seek == nil {
		return nil, ErrNotSeeking
	}

	cost, priority, err := s.debitAcceleration(ctx, userID)
	if err != nil {
		return nil, err
	}

	seek.Accelerated = true
	seek.QueueJumpPriority = priority
	if err := s.store.SetSeeking(ctx, seek); err != nil {
		return nil, fmt.Errorf("match: update seeking state: %w", err)
	}

	settings := s.parseSettings(seek.Settings)
	go s.triggerMatch(userID, settings, true)

	log.Printf("[match] user=%d accelerated, cost=%d", userID, cost)
	return &StartResult{
		EstimatedWaitSeconds: s.estimateWait(ctx),
		Accelerated:          true,
		PointsConsumed:       cost,
	}, nil
}

// debitAcceleration charges base * 2^(prior accelerations today) and bumps
// the daily counter. The counter lives in the volatile store so pricing is
// consistent across instances and restarts.
func (s *Service) debitAcceleration(ctx context.Context, userID int64) (cost, priority int, err error) {
	prior, err := s.store.Accelerations(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("match: read acceleration count: %w", err)
	}
	if prior > 16 {
		prior = 16 // cap the shift, the price is unpayable long before this
	}
	cost = s.cfg.BaseAccelCost << prior

	if err := s.points.Consume(ctx, userID, cost, "match_acceleration"); err != nil {
		return 0, 0, err
	}

	n, err := s.store.IncrAcceleration(ctx, userID)
	if err != nil {
		// The debit went through; pricing just won't escalate this time.
		log.Printf("[match] bump acceleration counter for %d: %v", userID, err)
		n = prior + 1
	}
	metrics.Accelerations.Inc()
	return cost, int(n), nil
}

// Cancel removes every trace of the user's seeking and result state. It
// is idempotent: cancelling with no state is a successful no-op, and
// store trouble degrades to success since volatile state is recoverable.
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	if err := s.store.Dequeue(ctx, userID); err != nil {
		log.Printf("[match] cancel dequeue %d: %v", userID, err)
	}
	if err := s.store.ClearSeeking(ctx, userID); err != nil {
		log.Printf("[match] cancel clear seeking %d: %v", userID, err)
	}
	if err := s.store.ClearResult(ctx, userID); err != nil {
		log.Printf("[match] cancel clear result %d: %v", userID, err)
	}
	return nil
}

// Result polls the user's match state. While the user is still seeking it
// refreshes TTLs and, if enough time has passed since the last attempt,
// fires a fresh one: a later seeker may qualify where earlier scans found
// nobody. Store unavailability degrades to "not matched".
func (s *Service) Result(ctx context.Context, userID int64) *store.ResultState {
	notMatched := &store.ResultState{Matched: false}

	res, err := s.store.GetResult(ctx, userID)
	if err != nil {
		log.Printf("[match] result read for %d: %v", userID, err)
		return notMatched
	}
	if res != nil {
		if res.Matched {
			if err := s.store.RefreshResult(ctx, userID); err != nil {
				log.Printf("[match] refresh result %d: %v", userID, err)
			}
		}
		return res
	}

	seek, err := s.store.GetSeeking(ctx, userID)
	if err != nil || seek == nil {
		return notMatched
	}

	if err := s.store.RefreshSeeking(ctx, userID); err != nil {
		log.Printf("[match] refresh seeking %d: %v", userID, err)
	}

	if time.Since(seek.LastAttemptAt) > s.cfg.RetriggerAfter {
		settings := s.parseSettings(seek.Settings)
		go s.triggerMatch(userID, settings, seek.Accelerated)
	}

	return notMatched
}

// QueueCount counts other currently-seeking users whose settings are
// compatible with the caller's, for UI display only.
func (s *Service) QueueCount(ctx context.Context, userID int64, mine Settings) (int, error) {
	mine.Normalize()

	members, err := s.store.QueueMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("match: read queue: %w", err)
	}

	count := 0
	for _, id := range members {
		if id == userID {
			continue
		}
		seek, err := s.store.GetSeeking(ctx, id)
		if err != nil || seek == nil {
			continue
		}
		theirs := s.parseSettings(seek.Settings)
		if mine.CompatibleWith(theirs) {
			count++
		}
	}
	return count, nil
}

// triggerMatch runs one background match attempt with its own deadline.
// It is invoked from fire-and-forget contexts only; failures are logged.
func (s *Service) triggerMatch(userID int64, settings Settings, accelerated bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AttemptTimeout)
	defer cancel()

	if err := s.store.TouchAttempt(ctx, userID, time.Now()); err != nil {
		log.Printf("[match] touch attempt %d: %v", userID, err)
	}
	if err := s.orch.PerformMatch(ctx, userID, settings, accelerated); err != nil {
		log.Printf("[match] attempt for %d: %v", userID, err)
	}
}

func (s *Service) parseSettings(raw json.RawMessage) Settings {
	settings := DefaultSettings()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			settings = DefaultSettings()
		}
	}
	settings.Normalize()
	return settings
}

// estimateWait is a coarse heuristic for the UI: a populated queue means a
// pairing is likely on the next attempt.
func (s *Service) estimateWait(ctx context.Context) int {
	size, err := s.store.QueueSize(ctx)
	if err != nil || size <= 1 {
		return 30
	}
	return 10
}

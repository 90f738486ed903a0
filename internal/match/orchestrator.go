package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mingle/matchd/internal/metrics"
	"github.com/mingle/matchd/internal/scoring"
	"github.com/mingle/matchd/internal/store"
)

// Scorer computes the compatibility score between two users.
type Scorer interface {
	Score(ctx context.Context, userID, candidateID int64) (int, error)
}

// ProfileSource supplies the durable profile data the orchestrator needs.
type ProfileSource interface {
	Summary(ctx context.Context, userID int64) (*store.MatchedUser, error)
	BlockedIDs(ctx context.Context, userID int64) ([]int64, error)
	Facts(ctx context.Context, userID int64) (*scoring.CandidateFacts, error)
}

// HistoryStats reads the durable match-count summary for a user.
type HistoryStats interface {
	Stats(ctx context.Context, userID int64) (int, *time.Time, error)
}

// OrchestratorConfig tunes candidate selection and retry behaviour.
type OrchestratorConfig struct {
	SampleSize            int // random-mode candidates, normal
	AcceleratedSampleSize int // random-mode candidates, accelerated
	MaxClaimRetries       int // bound on retry-after-concurrent-claim
}

// DefaultOrchestratorConfig returns the standard tunables.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SampleSize:            20,
		AcceleratedSampleSize: 50,
		MaxClaimRetries:       3,
	}
}

// Orchestrator runs the pairing algorithm: scan the queue, filter,
// score, pick the best candidate and commit the pairing atomically.
//
// There is no lock around the queue. Correctness under concurrent
// invocations relies on the idempotency checks at the top, the re-check
// right before committing, and the commit script refusing to overwrite an
// existing matched result.
type Orchestrator struct {
	store    *store.Store
	scorer   Scorer
	profiles ProfileSource
	history  HistoryStats
	events   Publisher // may be nil
	cfg      OrchestratorConfig
}

// NewOrchestrator wires the pairing algorithm. events may be nil when no
// downstream consumer is configured.
func NewOrchestrator(st *store.Store, scorer Scorer, profiles ProfileSource, history HistoryStats, events Publisher, cfg OrchestratorConfig) *Orchestrator {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultOrchestratorConfig().SampleSize
	}
	if cfg.AcceleratedSampleSize <= 0 {
		cfg.AcceleratedSampleSize = DefaultOrchestratorConfig().AcceleratedSampleSize
	}
	if cfg.MaxClaimRetries <= 0 {
		cfg.MaxClaimRetries = DefaultOrchestratorConfig().MaxClaimRetries
	}
	return &Orchestrator{store: st, scorer: scorer, profiles: profiles, history: history, events: events, cfg: cfg}
}

// candidate is one eligible queue entry with its parsed seeking settings.
type candidate struct {
	id        int64
	settings  Settings
	anonymous bool // effective anonymity: anonymous flag or accelerated seek
}

// PerformMatch attempts to pair the given user with the best compatible
// candidate currently waiting. Finding no candidate is not an error: the
// caller keeps polling and a later attempt may succeed.
func (o *Orchestrator) PerformMatch(ctx context.Context, userID int64, settings Settings, accelerated bool) error {
	return o.performMatch(ctx, userID, settings, accelerated, 0)
}

func (o *Orchestrator) performMatch(ctx context.Context, userID int64, settings Settings, accelerated bool, attempt int) error {
	// Another concurrent trigger may have paired this user already.
	if o.alreadyMatched(ctx, userID) {
		metrics.MatchAttempts.WithLabelValues("already_matched").Inc()
		return nil
	}

	members, err := o.store.QueueMembers(ctx)
	if err != nil {
		return fmt.Errorf("match: read queue: %w", err)
	}

	// Self-healing: a prior partial write may have left the user seeking
	// but absent from the queue.
	if !lo.Contains(members, userID) {
		if err := o.store.Enqueue(ctx, userID); err != nil {
			return fmt.Errorf("match: re-enqueue %d: %w", userID, err)
		}
	}

	eligible := o.harvestCandidates(ctx, userID, members)
	if len(eligible) == 0 {
		metrics.MatchAttempts.WithLabelValues("no_candidates").Inc()
		return nil
	}

	// The harvest can take a while; re-check before selecting.
	if o.alreadyMatched(ctx, userID) {
		metrics.MatchAttempts.WithLabelValues("already_matched").Inc()
		return nil
	}

	selected := o.selectCandidates(ctx, userID, settings, accelerated, eligible)

	selfAnonymous := settings.Anonymous || accelerated
	selected = lo.Filter(selected, func(c candidate, _ int) bool {
		return anonymityCompatible(selfAnonymous, settings.Anonymity, c.anonymous, c.settings.Anonymity)
	})
	if len(selected) == 0 {
		metrics.MatchAttempts.WithLabelValues("no_candidates").Inc()
		return nil
	}

	best, bestScore := o.pickBest(ctx, userID, selected)
	if best == nil {
		metrics.MatchAttempts.WithLabelValues("no_candidates").Inc()
		return nil
	}

	// Final race check: the candidate may have been claimed by a
	// concurrent pairing between selection and now.
	if o.alreadyMatched(ctx, best.id) {
		return o.retryAfterClaim(ctx, userID, settings, accelerated, attempt)
	}

	return o.commit(ctx, userID, settings, accelerated, *best, bestScore, selfAnonymous, attempt)
}

func (o *Orchestrator) alreadyMatched(ctx context.Context, userID int64) bool {
	res, err := o.store.GetResult(ctx, userID)
	return err == nil && res != nil && res.Matched
}

// retryAfterClaim re-runs the whole attempt for the original user, bounded
// so contention cannot recurse forever. Past the bound the attempt ends
// with no pairing; the user's next poll tries again.
func (o *Orchestrator) retryAfterClaim(ctx context.Context, userID int64, settings Settings, accelerated bool, attempt int) error {
	metrics.ClaimConflicts.Inc()
	if attempt+1 >= o.cfg.MaxClaimRetries {
		log.Printf("[matcher] claim retries exhausted for user=%d", userID)
		metrics.MatchAttempts.WithLabelValues("conflict_give_up").Inc()
		return nil
	}
	return o.performMatch(ctx, userID, settings, accelerated, attempt+1)
}

// harvestCandidates walks the queue snapshot, drops self and blocked ids,
// prunes entries whose seeking state has expired, and returns the rest
// with their parsed settings.
func (o *Orchestrator) harvestCandidates(ctx context.Context, userID int64, members []int64) []candidate {
	blocked := make(map[int64]bool)
	if ids, err := o.profiles.BlockedIDs(ctx, userID); err != nil {
		log.Printf("[matcher] block list for %d unavailable: %v", userID, err)
	} else {
		for _, id := range ids {
			blocked[id] = true
		}
	}

	var eligible []candidate
	var stale []int64
	for _, id := range members {
		if id == userID || blocked[id] {
			continue
		}

		seek, err := o.store.GetSeeking(ctx, id)
		if err != nil {
			continue // transient store trouble, skip this candidate
		}
		if seek == nil {
			stale = append(stale, id)
			continue
		}

		cs := DefaultSettings()
		if len(seek.Settings) > 0 {
			if err := json.Unmarshal(seek.Settings, &cs); err != nil {
				cs = DefaultSettings()
			}
		}
		cs.Normalize()

		eligible = append(eligible, candidate{
			id:        id,
			settings:  cs,
			anonymous: cs.Anonymous || seek.Accelerated,
		})
	}

	if len(stale) > 0 {
		if err := o.store.DequeueMany(ctx, stale); err != nil {
			log.Printf("[matcher] prune stale entries: %v", err)
		} else {
			log.Printf("[matcher] pruned %d stale queue entries", len(stale))
		}
	}

	return eligible
}

// selectCandidates applies the mode-specific narrowing step.
func (o *Orchestrator) selectCandidates(ctx context.Context, userID int64, settings Settings, accelerated bool, eligible []candidate) []candidate {
	switch settings.Mode {
	case ModeNearby, ModeInterest:
		return o.selectFiltered(ctx, userID, settings, eligible)
	default:
		limit := o.cfg.SampleSize
		if accelerated {
			limit = o.cfg.AcceleratedSampleSize
		}
		return lo.Samples(eligible, limit)
	}
}

// selectFiltered implements the nearby/interest modes: hard filters on the
// candidates' profiles, an ordering heuristic, and a relaxation ladder so
// an imperfect match beats an indefinite wait. Relaxation drops the gender
// filter first, then falls back to random selection over the original
// eligible set.
func (o *Orchestrator) selectFiltered(ctx context.Context, userID int64, settings Settings, eligible []candidate) []candidate {
	type enriched struct {
		candidate
		facts *scoring.CandidateFacts
	}

	now := time.Now()
	pool := make([]enriched, 0, len(eligible))
	for _, c := range eligible {
		facts, err := o.profiles.Facts(ctx, c.id)
		if err != nil {
			continue
		}
		pool = append(pool, enriched{candidate: c, facts: facts})
	}

	passes := func(e enriched, withGender bool) bool {
		if withGender && settings.Gender != "" &&
			strings.ToLower(e.facts.Gender) != settings.Gender {
			return false
		}
		if settings.Location != "" &&
			!strings.Contains(strings.ToLower(e.facts.Location), settings.Location) {
			return false
		}
		if settings.AgeFilterEnabled {
			if e.facts.BirthDate == nil {
				return false
			}
			age := int(now.Sub(*e.facts.BirthDate).Hours() / 24 / 365.25)
			if age < settings.MinAge || age > settings.MaxAge {
				return false
			}
		}
		return true
	}

	filtered := lo.Filter(pool, func(e enriched, _ int) bool { return passes(e, true) })
	if len(filtered) == 0 {
		filtered = lo.Filter(pool, func(e enriched, _ int) bool { return passes(e, false) })
	}
	if len(filtered) == 0 {
		return lo.Samples(eligible, o.cfg.SampleSize)
	}

	switch settings.Mode {
	case ModeNearby:
		sort.SliceStable(filtered, func(i, j int) bool {
			return prefixLen(strings.ToLower(filtered[i].facts.Location), settings.Location) >
				prefixLen(strings.ToLower(filtered[j].facts.Location), settings.Location)
		})
	case ModeInterest:
		mine := map[string]bool{}
		if facts, err := o.profiles.Facts(ctx, userID); err == nil {
			for _, tag := range facts.Tags {
				mine[strings.ToLower(tag)] = true
			}
		}
		overlap := func(e enriched) int {
			n := 0
			for _, tag := range e.facts.Tags {
				if mine[strings.ToLower(tag)] {
					n++
				}
			}
			return n
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			return overlap(filtered[i]) > overlap(filtered[j])
		})
	}

	return lo.Map(filtered, func(e enriched, _ int) candidate { return e.candidate })
}

// prefixLen returns the length of the common prefix of two strings.
func prefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// pickBest scores every surviving candidate and returns the highest. Ties
// keep scan order: the first maximum wins.
func (o *Orchestrator) pickBest(ctx context.Context, userID int64, selected []candidate) (*candidate, int) {
	var best *candidate
	bestScore := -1

	for i := range selected {
		start := time.Now()
		score, err := o.scorer.Score(ctx, userID, selected[i].id)
		metrics.ScoringDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			log.Printf("[matcher] scoring %d/%d failed: %v", userID, selected[i].id, err)
			continue
		}
		if score > bestScore {
			best = &selected[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// commit builds both sides' result states and writes them atomically,
// clearing queue membership and seeking state for both users.
func (o *Orchestrator) commit(ctx context.Context, userID int64, settings Settings, accelerated bool, best candidate, score int, selfAnonymous bool, attempt int) error {
	roomID := uuid.New().String()
	isAnonymous := selfAnonymous || best.anonymous

	userRes := &store.ResultState{
		Matched:     true,
		MatchedUser: o.summaryFor(ctx, best.id, isAnonymous),
		Score:       score,
		Status:      store.StatusPending,
		OtherStatus: store.StatusPending,
		IsAnonymous: isAnonymous,
		RoomID:      roomID,
		Stats:       o.statsFor(ctx, best.id),
	}
	candRes := &store.ResultState{
		Matched:     true,
		MatchedUser: o.summaryFor(ctx, userID, isAnonymous),
		Score:       score,
		Status:      store.StatusPending,
		OtherStatus: store.StatusPending,
		IsAnonymous: isAnonymous,
		RoomID:      roomID,
		Stats:       o.statsFor(ctx, userID),
	}

	code, err := o.store.CommitPair(ctx, userID, best.id, userRes, candRes)
	if err != nil {
		return fmt.Errorf("match: commit pairing: %w", err)
	}

	switch code {
	case store.CommitSelfMatched:
		metrics.MatchAttempts.WithLabelValues("already_matched").Inc()
		return nil
	case store.CommitCandidateMatched:
		return o.retryAfterClaim(ctx, userID, settings, accelerated, attempt)
	}

	metrics.MatchAttempts.WithLabelValues("committed").Inc()
	metrics.MatchesCommitted.Inc()
	log.Printf("[matcher] paired user=%d candidate=%d room=%s score=%d anonymous=%v",
		userID, best.id, roomID, score, isAnonymous)

	o.publishCommitted(userID, best.id, roomID, score, isAnonymous)
	return nil
}

// summaryFor fetches a participant's profile summary, masked when the
// pairing is anonymous. A missing profile degrades to a bare id so a
// profile-store hiccup cannot void an otherwise valid pairing.
func (o *Orchestrator) summaryFor(ctx context.Context, userID int64, anonymous bool) *store.MatchedUser {
	summary, err := o.profiles.Summary(ctx, userID)
	if err != nil {
		log.Printf("[matcher] summary for %d unavailable: %v", userID, err)
		summary = &store.MatchedUser{ID: userID}
	}
	if anonymous {
		summary.DisplayName = "Anonymous"
		summary.AvatarURL = ""
		summary.Bio = ""
	}
	return summary
}

func (o *Orchestrator) statsFor(ctx context.Context, userID int64) store.MatchStats {
	count, last, err := o.history.Stats(ctx, userID)
	if err != nil {
		log.Printf("[matcher] history stats for %d unavailable: %v", userID, err)
		return store.MatchStats{}
	}
	return store.MatchStats{TotalMatches: count, LastMatchedAt: last}
}

func (o *Orchestrator) publishCommitted(userA, userB int64, roomID string, score int, isAnonymous bool) {
	if o.events == nil {
		return
	}
	pairs := []struct{ user, partner int64 }{{userA, userB}, {userB, userA}}
	for _, p := range pairs {
		data, err := json.Marshal(CommittedEvent{
			UserID:      p.user,
			PartnerID:   p.partner,
			RoomID:      roomID,
			Score:       score,
			IsAnonymous: isAnonymous,
		})
		if err != nil {
			continue
		}
		if err := o.events.PublishMatchCommitted(p.user, data); err != nil {
			log.Printf("[matcher] publish committed event for %d: %v", p.user, err)
		}
	}
}

// Package scoring computes the 0-100 compatibility score between two user
// profiles. The computation is pure: it reads profile and history facts
// through a Source and has no side effects, so the same inputs always
// produce the same score.
//
// The score is a weighted sum of four sub-scores, scaled by an activity
// multiplier based on how recently the candidate logged in:
//
//	base     0.20  age closeness, gender, location, online presence
//	interest 0.30  Jaccard similarity of interest tags
//	social   0.25  mutual friends, prior interactions, activity similarity
//	quality  0.25  candidate profile completeness and engagement
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Weights of the four sub-scores.
const (
	weightBase     = 0.20
	weightInterest = 0.30
	weightSocial   = 0.25
	weightQuality  = 0.25
)

// neutralInterest is the fallback when either side has no usable tags.
// Missing tag data must degrade to a neutral default, never fail a match.
const neutralInterest = 0.5

// CandidateFacts are the per-user inputs to the scoring computation.
type CandidateFacts struct {
	BirthDate     *time.Time
	Gender        string
	Location      string
	Online        bool
	Tags          []string
	AvatarURL     string
	Bio           string
	LastLoginAt   *time.Time
	PostCount     int
	AvgEngagement float64 // average likes+comments per post
}

// PairFacts are inputs that depend on both users.
type PairFacts struct {
	MutualFriends int
	Interactions  int // messages + likes exchanged between the two
}

// Source provides the facts needed to score a pair of users.
type Source interface {
	Facts(ctx context.Context, userID int64) (*CandidateFacts, error)
	PairFacts(ctx context.Context, userID, otherID int64) (*PairFacts, error)
}

// Engine scores candidate pairs.
type Engine struct {
	src Source
	now func() time.Time
}

// NewEngine creates a scoring engine backed by the given fact source.
func NewEngine(src Source) *Engine {
	return &Engine{src: src, now: time.Now}
}

// Score computes the compatibility score of candidate for user, as an
// integer in [0,100].
func (e *Engine) Score(ctx context.Context, userID, candidateID int64) (int, error) {
	user, err := e.src.Facts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("scoring: facts for user %d: %w", userID, err)
	}
	candidate, err := e.src.Facts(ctx, candidateID)
	if err != nil {
		return 0, fmt.Errorf("scoring: facts for candidate %d: %w", candidateID, err)
	}
	pair, err := e.src.PairFacts(ctx, userID, candidateID)
	if err != nil {
		return 0, fmt.Errorf("scoring: pair facts %d/%d: %w", userID, candidateID, err)
	}

	now := e.now()

	weighted := weightBase*baseScore(user, candidate, now) +
		weightInterest*interestScore(user.Tags, candidate.Tags) +
		weightSocial*socialScore(user, candidate, pair) +
		weightQuality*qualityScore(candidate)

	score := int(math.Round(weighted * activityMultiplier(candidate.LastLoginAt, now) * 100))
	return clamp(score, 0, 100), nil
}

// baseScore combines age closeness, declared-gender complement, location
// proximity and a flat online-presence term.
func baseScore(user, candidate *CandidateFacts, now time.Time) float64 {
	var score float64

	score += 0.40 * ageCloseness(user.BirthDate, candidate.BirthDate, now)

	if user.Gender != "" && candidate.Gender != "" && user.Gender != candidate.Gender {
		score += 0.20
	}

	score += 0.25 * locationCloseness(user.Location, candidate.Location)

	if candidate.Online {
		score += 0.15
	}

	return score
}

// ageCloseness maps the age difference onto [0,1]. No birthdate on either
// side yields 0.
func ageCloseness(a, b *time.Time, now time.Time) float64 {
	if a == nil || b == nil {
		return 0
	}
	diff := math.Abs(ageAt(*a, now) - ageAt(*b, now))
	if diff >= 20 {
		return 0
	}
	return 1 - diff/20
}

func ageAt(birth, now time.Time) float64 {
	return now.Sub(birth).Hours() / 24 / 365.25
}

// locationCloseness: 1.0 on an exact match, 0.5 when the two locations
// share a leading region segment, 0 otherwise.
func locationCloseness(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if regionOf(a) == regionOf(b) {
		return 0.5
	}
	return 0
}

// regionOf returns the first segment of a "region city district" style
// location string.
func regionOf(location string) string {
	if i := strings.IndexAny(location, " ,/"); i > 0 {
		return location[:i]
	}
	return location
}

// interestScore is the Jaccard similarity of the two tag sets, with a
// neutral default when either side has nothing usable.
func interestScore(userTags, candidateTags []string) float64 {
	a := normalizeTags(userTags)
	b := normalizeTags(candidateTags)
	if len(a) == 0 || len(b) == 0 {
		return neutralInterest
	}

	intersection := 0
	for tag := range a {
		if b[tag] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func normalizeTags(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			set[tag] = true
		}
	}
	return set
}

// socialScore combines capped bonuses for mutual friends and prior
// interactions with a similarity term over posting volume.
func socialScore(user, candidate *CandidateFacts, pair *PairFacts) float64 {
	friends := math.Min(float64(pair.MutualFriends), 5) / 5
	interactions := math.Min(float64(pair.Interactions), 20) / 20

	return 0.40*friends + 0.30*interactions + 0.30*activitySimilarity(user.PostCount, candidate.PostCount)
}

// activitySimilarity compares posting volume on [0,1]; identical volumes
// score 1, wildly different volumes approach 0.
func activitySimilarity(a, b int) float64 {
	max := math.Max(math.Max(float64(a), float64(b)), 1)
	return 1 - math.Abs(float64(a)-float64(b))/max
}

// qualityScore rates the candidate alone: profile completeness plus
// average content engagement.
func qualityScore(candidate *CandidateFacts) float64 {
	filled := 0
	if candidate.AvatarURL != "" {
		filled++
	}
	if candidate.Bio != "" {
		filled++
	}
	if candidate.Location != "" {
		filled++
	}
	if len(normalizeTags(candidate.Tags)) > 0 {
		filled++
	}
	completeness := float64(filled) / 4

	engagement := math.Min(candidate.AvgEngagement/50, 1)

	return 0.60*completeness + 0.40*engagement
}

// activityMultiplier scales the score by login recency. An unknown last
// login is treated like the oldest bucket.
func activityMultiplier(lastLogin *time.Time, now time.Time) float64 {
	if lastLogin == nil {
		return 0.6
	}
	switch hours := now.Sub(*lastLogin).Hours(); {
	case hours <= 24:
		return 1.2
	case hours <= 48:
		return 1.0
	case hours <= 72:
		return 0.8
	default:
		return 0.6
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

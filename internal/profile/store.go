// Package profile provides PostgreSQL-backed, read-mostly access to user
// profiles, block lists and the social-graph counts the scoring engine
// needs. It also persists each user's durable default match settings.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mingle/matchd/internal/scoring"
	"github.com/mingle/matchd/internal/store"
)

// onlineWindow is how recently a user must have been active to count as
// online for scoring purposes.
const onlineWindow = 10 * time.Minute

// Profile is a user profile row.
type Profile struct {
	ID           int64
	DisplayName  string
	Gender       string
	Location     string
	AvatarURL    string
	Bio          string
	BirthDate    *time.Time
	Tags         []string
	LastLoginAt  *time.Time
	LastActiveAt *time.Time
}

// Store reads profile data from PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a profile store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a full profile. Returns sql.ErrNoRows wrapped if the user
// does not exist.
func (s *Store) Get(ctx context.Context, userID int64) (*Profile, error) {
	const q = `
		SELECT id, display_name, gender, location, avatar_url, bio,
		       birth_date, tags, last_login_at, last_active_at
		FROM profiles WHERE id = $1`

	p := &Profile{}
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&p.ID, &p.DisplayName, &p.Gender, &p.Location, &p.AvatarURL, &p.Bio,
		&p.BirthDate, pq.Array(&p.Tags), &p.LastLoginAt, &p.LastActiveAt,
	)
	if err != nil {
		return nil, fmt.Errorf("profile: get %d: %w", userID, err)
	}
	return p, nil
}

// Summary returns the profile summary embedded in match results.
func (s *Store) Summary(ctx context.Context, userID int64) (*store.MatchedUser, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &store.MatchedUser{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
		Location:    p.Location,
	}, nil
}

// Tags returns a user's interest tags; absent users yield an empty set.
func (s *Store) Tags(ctx context.Context, userID int64) ([]string, error) {
	var tags []string
	err := s.db.QueryRowContext(ctx,
		`SELECT tags FROM profiles WHERE id = $1`, userID).Scan(pq.Array(&tags))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: tags %d: %w", userID, err)
	}
	return tags, nil
}

// BlockedIDs returns every user id blocked by or blocking the given user.
// The orchestrator must never pair across a block in either direction.
func (s *Store) BlockedIDs(ctx context.Context, userID int64) ([]int64, error) {
	const q = `
		SELECT blocked_id FROM blocked_users WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM blocked_users WHERE blocked_id = $1`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("profile: blocked ids %d: %w", userID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("profile: scan blocked id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Facts implements scoring.Source.
func (s *Store) Facts(ctx context.Context, userID int64) (*scoring.CandidateFacts, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT COUNT(*), COALESCE(AVG(like_count + comment_count), 0)
		FROM posts WHERE author_id = $1`

	var postCount int
	var avgEngagement float64
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&postCount, &avgEngagement); err != nil {
		return nil, fmt.Errorf("profile: post stats %d: %w", userID, err)
	}

	online := false
	if p.LastActiveAt != nil {
		online = time.Since(*p.LastActiveAt) <= onlineWindow
	}

	return &scoring.CandidateFacts{
		BirthDate:     p.BirthDate,
		Gender:        p.Gender,
		Location:      p.Location,
		Online:        online,
		Tags:          p.Tags,
		AvatarURL:     p.AvatarURL,
		Bio:           p.Bio,
		LastLoginAt:   p.LastLoginAt,
		PostCount:     postCount,
		AvgEngagement: avgEngagement,
	}, nil
}

// PairFacts implements scoring.Source.
func (s *Store) PairFacts(ctx context.Context, userID, otherID int64) (*scoring.PairFacts, error) {
	const friendsQ = `
		SELECT COUNT(*) FROM friendships a
		JOIN friendships b ON a.friend_id = b.friend_id
		WHERE a.user_id = $1 AND b.user_id = $2`

	pf := &scoring.PairFacts{}
	if err := s.db.QueryRowContext(ctx, friendsQ, userID, otherID).Scan(&pf.MutualFriends); err != nil {
		return nil, fmt.Errorf("profile: mutual friends %d/%d: %w", userID, otherID, err)
	}

	const interactionsQ = `
		SELECT COUNT(*) FROM interactions
		WHERE (actor_id = $1 AND target_id = $2)
		   OR (actor_id = $2 AND target_id = $1)`

	if err := s.db.QueryRowContext(ctx, interactionsQ, userID, otherID).Scan(&pf.Interactions); err != nil {
		return nil, fmt.Errorf("profile: interactions %d/%d: %w", userID, otherID, err)
	}
	return pf, nil
}

// GetSettings returns the user's stored default match settings as raw
// JSON, or nil when none were saved yet.
func (s *Store) GetSettings(ctx context.Context, userID int64) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM match_settings WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get settings %d: %w", userID, err)
	}
	return raw, nil
}

// PutSettings upserts the user's default match settings.
func (s *Store) PutSettings(ctx context.Context, userID int64, settings json.RawMessage) error {
	const q = `
		INSERT INTO match_settings (user_id, settings, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET settings = $2, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, q, userID, []byte(settings)); err != nil {
		return fmt.Errorf("profile: put settings %d: %w", userID, err)
	}
	return nil
}

// Package history persists confirmed matches in PostgreSQL. One row is
// written per participant per confirmed match, and only after both sides
// of the acceptance handshake have accepted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one participant's view of a confirmed match.
type Record struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	MatchedUserID int64     `json:"matched_user_id"`
	Score         int       `json:"score"`
	IsAnonymous   bool      `json:"is_anonymous"`
	RoomID        string    `json:"room_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store manages match history in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertPair writes both participants' rows in one transaction, so a
// confirmed match is never recorded unilaterally.
func (s *Store) InsertPair(ctx context.Context, userA, userB int64, score int, isAnonymous bool, roomID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO match_history (user_id, matched_user_id, score, is_anonymous, room_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	if _, err := tx.ExecContext(ctx, q, userA, userB, score, isAnonymous, roomID); err != nil {
		return fmt.Errorf("history: insert row for %d: %w", userA, err)
	}
	if _, err := tx.ExecContext(ctx, q, userB, userA, score, isAnonymous, roomID); err != nil {
		return fmt.Errorf("history: insert row for %d: %w", userB, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit pair %s: %w", roomID, err)
	}
	return nil
}

// Stats returns the user's confirmed match count and the time of their most
// recent confirmed match (nil if they have none).
func (s *Store) Stats(ctx context.Context, userID int64) (int, *time.Time, error) {
	const q = `SELECT COUNT(*), MAX(created_at) FROM match_history WHERE user_id = $1`

	var count int
	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&count, &last); err != nil {
		return 0, nil, fmt.Errorf("history: stats %d: %w", userID, err)
	}
	if !last.Valid {
		return count, nil, nil
	}
	return count, &last.Time, nil
}

// List returns the user's match history, newest first.
func (s *Store) List(ctx context.Context, userID int64, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const q = `
		SELECT id, user_id, matched_user_id, score, is_anonymous, room_id, created_at
		FROM match_history WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list %d: %w", userID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.MatchedUserID, &r.Score, &r.IsAnonymous, &r.RoomID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes one of the user's own history rows. Returns false when no
// such row belongs to the user.
func (s *Store) Delete(ctx context.Context, userID, recordID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM match_history WHERE id = $1 AND user_id = $2`, recordID, userID)
	if err != nil {
		return false, fmt.Errorf("history: delete %d for %d: %w", recordID, userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("history: delete %d for %d: %w", recordID, userID, err)
	}
	return affected > 0, nil
}

// DeleteAll removes every history row belonging to the user and returns
// how many were removed.
func (s *Store) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM match_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("history: delete all for %d: %w", userID, err)
	}
	return res.RowsAffected()
}

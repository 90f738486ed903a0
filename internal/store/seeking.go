package store

import (
	"context"
	"strconv"
	"time"
)

// SetSeeking writes a user's seeking state with a fresh TTL, replacing any
// previous entry.
func (s *Store) SetSeeking(ctx context.Context, st *SeekingState) error {
	key := seekingKey(st.UserID)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		"settings":        string(st.Settings),
		"enqueued_at":     st.EnqueuedAt.Unix(),
		"last_attempt_at": st.LastAttemptAt.Unix(),
		"accelerated":     strconv.FormatBool(st.Accelerated),
		"priority":        st.QueueJumpPriority,
	})
	pipe.Expire(ctx, key, s.ttls.Seeking)
	_, err := pipe.Exec(ctx)
	return err
}

// GetSeeking retrieves a user's seeking state. Returns nil if the user is
// not seeking (expired, cancelled or never enqueued).
func (s *Store) GetSeeking(ctx context.Context, userID int64) (*SeekingState, error) {
	result, err := s.rdb.HGetAll(ctx, seekingKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	enqueuedAt, _ := strconv.ParseInt(result["enqueued_at"], 10, 64)
	lastAttemptAt, _ := strconv.ParseInt(result["last_attempt_at"], 10, 64)
	priority, _ := strconv.Atoi(result["priority"])

	return &SeekingState{
		UserID:            userID,
		Settings:          []byte(result["settings"]),
		EnqueuedAt:        time.Unix(enqueuedAt, 0),
		LastAttemptAt:     time.Unix(lastAttemptAt, 0),
		Accelerated:       result["accelerated"] == "true",
		QueueJumpPriority: priority,
	}, nil
}

// IsSeeking checks whether a live seeking state exists for the user.
// Store errors degrade to "not seeking".
func (s *Store) IsSeeking(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, seekingKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearSeeking deletes the seeking state. Deleting an absent key is a no-op.
func (s *Store) ClearSeeking(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, seekingKey(userID)).Err()
}

// RefreshSeeking renews the TTL of the seeking state and the queue key.
// Called on every result poll while the user remains unmatched.
func (s *Store) RefreshSeeking(ctx context.Context, userID int64) error {
	pipe := s.rdb.Pipeline()
	pipe.Expire(ctx, seekingKey(userID), s.ttls.Seeking)
	pipe.Expire(ctx, queueKey, s.ttls.Seeking)
	_, err := pipe.Exec(ctx)
	return err
}

// TouchAttempt records the time of the latest match attempt for the user.
// The update is skipped when the seeking state no longer exists, so a touch
// cannot resurrect an expired entry as a TTL-less hash.
func (s *Store) TouchAttempt(ctx context.Context, userID int64, at time.Time) error {
	key := seekingKey(userID)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	return s.rdb.HSet(ctx, key, "last_attempt_at", at.Unix()).Err()
}

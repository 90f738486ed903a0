package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// resultFields flattens a ResultState into the hash representation used in
// Redis. Nested values are stored as JSON strings.
func resultFields(rs *ResultState) (map[string]string, error) {
	fields := map[string]string{
		"matched":      strconv.FormatBool(rs.Matched),
		"score":        strconv.Itoa(rs.Score),
		"status":       rs.Status,
		"other_status": rs.OtherStatus,
		"is_anonymous": strconv.FormatBool(rs.IsAnonymous),
		"room_id":      rs.RoomID,
		"reason":       rs.Reason,
	}

	if rs.MatchedUser != nil {
		b, err := json.Marshal(rs.MatchedUser)
		if err != nil {
			return nil, fmt.Errorf("store: marshal matched user: %w", err)
		}
		fields["matched_user"] = string(b)
	}

	b, err := json.Marshal(rs.Stats)
	if err != nil {
		return nil, fmt.Errorf("store: marshal match stats: %w", err)
	}
	fields["stats"] = string(b)

	return fields, nil
}

func resultFromHash(h map[string]string) (*ResultState, error) {
	rs := &ResultState{
		Matched:     h["matched"] == "true",
		Status:      h["status"],
		OtherStatus: h["other_status"],
		IsAnonymous: h["is_anonymous"] == "true",
		RoomID:      h["room_id"],
		Reason:      h["reason"],
	}
	rs.Score, _ = strconv.Atoi(h["score"])

	if raw := h["matched_user"]; raw != "" {
		var mu MatchedUser
		if err := json.Unmarshal([]byte(raw), &mu); err != nil {
			return nil, fmt.Errorf("store: unmarshal matched user: %w", err)
		}
		rs.MatchedUser = &mu
	}
	if raw := h["stats"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rs.Stats); err != nil {
			return nil, fmt.Errorf("store: unmarshal match stats: %w", err)
		}
	}
	return rs, nil
}

// SetResult writes a user's match result with the given TTL, replacing any
// previous entry.
func (s *Store) SetResult(ctx context.Context, userID int64, rs *ResultState, ttl time.Duration) error {
	fields, err := resultFields(rs)
	if err != nil {
		return err
	}

	key := resultKey(userID)
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// GetResult retrieves a user's match result. Returns nil if no result
// exists (still waiting, expired or never matched).
func (s *Store) GetResult(ctx context.Context, userID int64) (*ResultState, error) {
	h, err := s.rdb.HGetAll(ctx, resultKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, nil
	}
	return resultFromHash(h)
}

// ClearResult deletes the match result. Deleting an absent key is a no-op.
func (s *Store) ClearResult(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, resultKey(userID)).Err()
}

// RefreshResult renews the TTL of an existing match result.
func (s *Store) RefreshResult(ctx context.Context, userID int64) error {
	return s.rdb.Expire(ctx, resultKey(userID), s.ttls.Result).Err()
}

// SetRejected overwrites both participants' results with the short-lived
// rejection sentinel so each side's next poll observes the rejection.
func (s *Store) SetRejected(ctx context.Context, userA, userB int64) error {
	sentinel := &ResultState{Matched: false, Reason: ReasonRejected}
	fields, err := resultFields(sentinel)
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	for _, id := range []int64{userA, userB} {
		key := resultKey(id)
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttls.Rejected)
	}
	_, err = pipe.Exec(ctx)
	return err
}

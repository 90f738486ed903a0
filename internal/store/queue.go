package store

import (
	"context"
	"sort"
	"strconv"
)

// Enqueue adds a user to the waiting queue. The queue's own TTL is refreshed
// on every write so it expires together with the last seeker.
func (s *Store) Enqueue(ctx context.Context, userID int64) error {
	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, queueKey, userID)
	pipe.Expire(ctx, queueKey, s.ttls.Seeking)
	_, err := pipe.Exec(ctx)
	return err
}

// Dequeue removes a user from the waiting queue. Removing an absent member
// is a no-op.
func (s *Store) Dequeue(ctx context.Context, userID int64) error {
	return s.rdb.SRem(ctx, queueKey, userID).Err()
}

// DequeueMany removes several users in one round trip. An empty slice
// issues no command at all.
func (s *Store) DequeueMany(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	return s.rdb.SRem(ctx, queueKey, members...).Err()
}

// QueueMembers returns every queued user id in ascending order. The sort
// gives scans a stable order; queue position itself carries no meaning.
func (s *Store) QueueMembers(ctx context.Context) ([]int64, error) {
	raw, err := s.rdb.SMembers(ctx, queueKey).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(raw))
	for _, m := range raw {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue // foreign member, skip
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// InQueue checks queue membership for a single user.
func (s *Store) InQueue(ctx context.Context, userID int64) (bool, error) {
	return s.rdb.SIsMember(ctx, queueKey, userID).Result()
}

// QueueSize returns the number of users currently waiting.
func (s *Store) QueueSize(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, queueKey).Result()
}

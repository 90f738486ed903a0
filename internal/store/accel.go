package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Accelerations returns how many times the user has accelerated today.
// The counter lives in Redis so it survives restarts and is shared across
// server instances.
func (s *Store) Accelerations(ctx context.Context, userID int64) (int64, error) {
	n, err := s.rdb.Get(ctx, accelKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IncrAcceleration bumps the user's daily acceleration counter and returns
// the new value. On first use the counter is set to expire at the next
// midnight UTC, resetting the exponential price schedule each day.
func (s *Store) IncrAcceleration(ctx context.Context, userID int64) (int64, error) {
	key := accelKey(userID)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, untilMidnightUTC(time.Now())).Err(); err != nil {
			// Key exists without a TTL; drop it rather than let the price
			// schedule stick forever.
			s.rdb.Del(ctx, key)
			return 0, err
		}
	}
	return n, nil
}

func untilMidnightUTC(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

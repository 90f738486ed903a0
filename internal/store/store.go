// Package store holds all volatile matchmaking state in Redis: the global
// waiting queue, per-user seeking state, per-user match results and the
// daily acceleration counters. Every entry carries a TTL so abandoned state
// expires on its own instead of requiring cleanup jobs.
//
// Key layout:
//
//	match:queue           Set of user ids currently waiting
//	match:seeking:<id>    Hash, one per seeking user
//	match:result:<id>     Hash, one per user with a pending/committed result
//	match:accel:<id>      Daily acceleration counter (expires at midnight UTC)
package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "match:queue"
	seekingPrefix = "match:seeking:"
	resultPrefix  = "match:result:"
	accelPrefix   = "match:accel:"
)

// Result status values for the two-party acceptance handshake.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// ReasonRejected marks the short-lived sentinel written when one side
// rejects a pairing, so the other side's next poll observes it.
const ReasonRejected = "REJECTED"

// TTLs groups the expiry windows applied to volatile entries.
type TTLs struct {
	Seeking  time.Duration // seeking state and queue key
	Result   time.Duration // committed match results
	Rejected time.Duration // rejection sentinel
}

// DefaultTTLs returns the standard expiry windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Seeking:  300 * time.Second,
		Result:   300 * time.Second,
		Rejected: 60 * time.Second,
	}
}

// Store manages the matchmaking state in Redis.
type Store struct {
	rdb          *redis.Client
	ttls         TTLs
	commitScript *redis.Script
	acceptScript *redis.Script
}

// New creates a Store using the given Redis client and TTL windows.
func New(rdb *redis.Client, ttls TTLs) *Store {
	return &Store{
		rdb:          rdb,
		ttls:         ttls,
		commitScript: redis.NewScript(commitPairLua),
		acceptScript: redis.NewScript(markAcceptedLua),
	}
}

// SeekingState is the per-user record created when a user starts seeking.
// Settings is kept as raw JSON so the store stays agnostic of their shape.
type SeekingState struct {
	UserID            int64
	Settings          json.RawMessage
	EnqueuedAt        time.Time
	LastAttemptAt     time.Time
	Accelerated       bool
	QueueJumpPriority int
}

// MatchedUser is the profile summary embedded in a match result.
type MatchedUser struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Location    string `json:"location,omitempty"`
}

// MatchStats summarises the counterpart's durable match history.
type MatchStats struct {
	TotalMatches  int        `json:"total_matches"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
}

// ResultState is the per-user match result. A committed pairing writes one
// of these for each participant, symmetric in RoomID and Score.
type ResultState struct {
	Matched     bool
	MatchedUser *MatchedUser
	Score       int
	Status      string // pending | accepted
	OtherStatus string // mirror of the counterpart's status
	IsAnonymous bool
	RoomID      string
	Stats       MatchStats
	Reason      string // set on the rejection sentinel
}

func seekingKey(userID int64) string {
	return seekingPrefix + strconv.FormatInt(userID, 10)
}

func resultKey(userID int64) string {
	return resultPrefix + strconv.FormatInt(userID, 10)
}

func accelKey(userID int64) string {
	return accelPrefix + strconv.FormatInt(userID, 10)
}

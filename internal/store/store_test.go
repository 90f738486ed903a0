package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client, DefaultTTLs())
}

func seeking(userID int64) *SeekingState {
	return &SeekingState{
		UserID:     userID,
		Settings:   json.RawMessage(`{"matching_mode":"random"}`),
		EnqueuedAt: time.Now(),
	}
}

func TestQueueMembership(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, 3))
	require.NoError(t, s.Enqueue(ctx, 1))
	require.NoError(t, s.Enqueue(ctx, 2))
	require.NoError(t, s.Enqueue(ctx, 2)) // duplicate, set semantics

	members, err := s.QueueMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, members)

	in, err := s.InQueue(ctx, 2)
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, s.Dequeue(ctx, 2))
	require.NoError(t, s.DequeueMany(ctx, []int64{1, 3}))
	require.NoError(t, s.DequeueMany(ctx, nil)) // no-op

	size, err := s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestSeekingLifecycle(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	st := seeking(42)
	st.Accelerated = true
	st.QueueJumpPriority = 2
	require.NoError(t, s.SetSeeking(ctx, st))

	got, err := s.GetSeeking(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.UserID)
	assert.True(t, got.Accelerated)
	assert.Equal(t, 2, got.QueueJumpPriority)
	assert.JSONEq(t, `{"matching_mode":"random"}`, string(got.Settings))

	ok, err := s.IsSeeking(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.TouchAttempt(ctx, 42, time.Unix(1700000000, 0)))
	got, err = s.GetSeeking(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.LastAttemptAt.Unix())

	require.NoError(t, s.ClearSeeking(ctx, 42))
	got, err = s.GetSeeking(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Touching an absent entry must not create it.
	require.NoError(t, s.TouchAttempt(ctx, 42, time.Now()))
	ok, err = s.IsSeeking(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	_ = mr
}

func TestSeekingExpiry(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSeeking(ctx, seeking(7)))
	mr.FastForward(301 * time.Second)

	ok, err := s.IsSeeking(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok, "seeking state should expire after its TTL")
}

func TestResultRoundTrip(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	last := time.Unix(1690000000, 0).UTC()
	rs := &ResultState{
		Matched:     true,
		MatchedUser: &MatchedUser{ID: 9, DisplayName: "ada", Location: "berlin"},
		Score:       87,
		Status:      StatusPending,
		OtherStatus: StatusPending,
		IsAnonymous: true,
		RoomID:      "room-1",
		Stats:       MatchStats{TotalMatches: 3, LastMatchedAt: &last},
	}
	require.NoError(t, s.SetResult(ctx, 5, rs, time.Minute))

	got, err := s.GetResult(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Matched)
	assert.Equal(t, int64(9), got.MatchedUser.ID)
	assert.Equal(t, 87, got.Score)
	assert.True(t, got.IsAnonymous)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Equal(t, 3, got.Stats.TotalMatches)
	require.NotNil(t, got.Stats.LastMatchedAt)
	assert.Equal(t, last.Unix(), got.Stats.LastMatchedAt.Unix())

	require.NoError(t, s.ClearResult(ctx, 5))
	got, err = s.GetResult(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCommitPair(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, 1))
	require.NoError(t, s.Enqueue(ctx, 2))
	require.NoError(t, s.SetSeeking(ctx, seeking(1)))
	require.NoError(t, s.SetSeeking(ctx, seeking(2)))

	resA := &ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 2}, Score: 70, Status: StatusPending, OtherStatus: StatusPending, RoomID: "r"}
	resB := &ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 1}, Score: 70, Status: StatusPending, OtherStatus: StatusPending, RoomID: "r"}

	code, err := s.CommitPair(ctx, 1, 2, resA, resB)
	require.NoError(t, err)
	assert.Equal(t, CommitOK, code)

	// Both results exist, symmetric room and score.
	gotA, err := s.GetResult(ctx, 1)
	require.NoError(t, err)
	gotB, err := s.GetResult(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, gotA)
	require.NotNil(t, gotB)
	assert.Equal(t, gotA.RoomID, gotB.RoomID)
	assert.Equal(t, gotA.Score, gotB.Score)

	// Seeking states and queue membership are gone.
	for _, id := range []int64{1, 2} {
		ok, err := s.IsSeeking(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
		in, err := s.InQueue(ctx, id)
		require.NoError(t, err)
		assert.False(t, in)
	}
}

func TestCommitPairConflicts(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	res := &ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 99}, Status: StatusPending, OtherStatus: StatusPending, RoomID: "r0"}

	// Candidate already claimed by a concurrent commit.
	require.NoError(t, s.SetResult(ctx, 2, res, time.Minute))
	code, err := s.CommitPair(ctx, 1, 2,
		&ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 2}},
		&ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, CommitCandidateMatched, code)

	// Seeking user already matched.
	require.NoError(t, s.ClearResult(ctx, 2))
	require.NoError(t, s.SetResult(ctx, 1, res, time.Minute))
	code, err = s.CommitPair(ctx, 1, 2,
		&ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 2}},
		&ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, CommitSelfMatched, code)
}

func TestMarkAccepted(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	resA := &ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 2}, Status: StatusPending, OtherStatus: StatusPending, RoomID: "r"}
	resB := &ResultState{Matched: true, MatchedUser: &MatchedUser{ID: 1}, Status: StatusPending, OtherStatus: StatusPending, RoomID: "r"}
	code, err := s.CommitPair(ctx, 1, 2, resA, resB)
	require.NoError(t, err)
	require.Equal(t, CommitOK, code)

	// First acceptance: recorded, waiting for the counterpart.
	code, err = s.MarkAccepted(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, AcceptWaiting, code)

	gotB, err := s.GetResult(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, gotB.OtherStatus, "mirror must be updated on the counterpart")

	// Second acceptance completes the handshake.
	code, err = s.MarkAccepted(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, AcceptBoth, code)

	// The completing transition fires only once; retries from either side
	// report the handshake as already done.
	for _, pair := range [][2]int64{{1, 2}, {2, 1}} {
		code, err = s.MarkAccepted(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, AcceptAlreadyConfirmed, code)
	}

	// Accepting with no matched result.
	code, err = s.MarkAccepted(ctx, 77, 78)
	require.NoError(t, err)
	assert.Equal(t, AcceptNoMatch, code)
}

func TestSetRejectedSentinel(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetRejected(ctx, 1, 2))

	for _, id := range []int64{1, 2} {
		got, err := s.GetResult(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Matched)
		assert.Equal(t, ReasonRejected, got.Reason)
	}

	mr.FastForward(61 * time.Second)
	got, err := s.GetResult(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "rejection sentinel should expire after its short TTL")
}

func TestAccelerationCounter(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Accelerations(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.IncrAcceleration(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.IncrAcceleration(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Counter resets after the daily window passes.
	mr.FastForward(25 * time.Hour)
	n, err = s.Accelerations(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, n)
}

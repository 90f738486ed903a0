package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Commit outcomes returned by CommitPair.
const (
	CommitOK               = 1  // pairing written for both users
	CommitSelfMatched      = 0  // the seeking user was already matched
	CommitCandidateMatched = -1 // the candidate was claimed concurrently
)

// Accept outcomes returned by MarkAccepted.
const (
	AcceptAlreadyConfirmed = 2  // handshake was already complete before this call
	AcceptBoth             = 1  // both sides have now accepted
	AcceptWaiting          = 0  // own acceptance recorded, counterpart pending
	AcceptNoMatch          = -1 // no matched result exists for the caller
)

// commitPairLua writes both participants' result states, clears both
// seeking keys and removes both ids from the queue in one atomic step.
// The script refuses to commit if either side already holds a matched
// result, which is the single-writer arbitration for concurrent
// orchestrator invocations racing over the same users.
//
//	KEYS[1] result key of the seeking user
//	KEYS[2] result key of the candidate
//	KEYS[3] seeking key of the seeking user
//	KEYS[4] seeking key of the candidate
//	KEYS[5] queue key
//	ARGV[1] result TTL in seconds
//	ARGV[2] result hash of the seeking user, JSON object of string fields
//	ARGV[3] result hash of the candidate, JSON object of string fields
//	ARGV[4] seeking user id
//	ARGV[5] candidate user id
const commitPairLua = `
if redis.call('HGET', KEYS[1], 'matched') == 'true' then return 0 end
if redis.call('HGET', KEYS[2], 'matched') == 'true' then return -1 end

local function write(key, blob)
    local fields = cjson.decode(blob)
    redis.call('DEL', key)
    for k, v in pairs(fields) do
        redis.call('HSET', key, k, v)
    end
    redis.call('EXPIRE', key, ARGV[1])
end

write(KEYS[1], ARGV[2])
write(KEYS[2], ARGV[3])

redis.call('DEL', KEYS[3])
redis.call('DEL', KEYS[4])
redis.call('SREM', KEYS[5], ARGV[4], ARGV[5])

return 1
`

// markAcceptedLua records the caller's acceptance on their own result and
// mirrors it into the counterpart's other_status field. Completing the
// handshake is a one-shot transition: once both statuses read accepted, a
// repeated call reports 2 instead of 1 so the confirmation side effects
// run exactly once.
//
//	KEYS[1] result key of the accepting user
//	KEYS[2] result key of the counterpart
const markAcceptedLua = `
if redis.call('HGET', KEYS[1], 'matched') ~= 'true' then return -1 end
if redis.call('HGET', KEYS[1], 'status') == 'accepted' and
   redis.call('HGET', KEYS[1], 'other_status') == 'accepted' then
    return 2
end

redis.call('HSET', KEYS[1], 'status', 'accepted')
if redis.call('HGET', KEYS[2], 'matched') == 'true' then
    redis.call('HSET', KEYS[2], 'other_status', 'accepted')
end

if redis.call('HGET', KEYS[1], 'other_status') == 'accepted' then return 1 end
return 0
`

// CommitPair atomically commits a pairing: both result states written,
// both seeking states cleared, both users removed from the queue.
func (s *Store) CommitPair(ctx context.Context, userID, candidateID int64, userRes, candidateRes *ResultState) (int, error) {
	userFields, err := resultFields(userRes)
	if err != nil {
		return CommitSelfMatched, err
	}
	candFields, err := resultFields(candidateRes)
	if err != nil {
		return CommitSelfMatched, err
	}

	userBlob, err := json.Marshal(userFields)
	if err != nil {
		return CommitSelfMatched, fmt.Errorf("store: marshal commit payload: %w", err)
	}
	candBlob, err := json.Marshal(candFields)
	if err != nil {
		return CommitSelfMatched, fmt.Errorf("store: marshal commit payload: %w", err)
	}

	keys := []string{
		resultKey(userID),
		resultKey(candidateID),
		seekingKey(userID),
		seekingKey(candidateID),
		queueKey,
	}
	ttlSeconds := int(s.ttls.Result / time.Second)

	code, err := s.commitScript.Run(ctx, s.rdb, keys,
		ttlSeconds, string(userBlob), string(candBlob), userID, candidateID).Int()
	if err != nil {
		return CommitSelfMatched, fmt.Errorf("store: commit pair: %w", err)
	}
	return code, nil
}

// MarkAccepted records a user's acceptance of their current pairing and
// reports whether both sides have now accepted.
func (s *Store) MarkAccepted(ctx context.Context, userID, partnerID int64) (int, error) {
	keys := []string{resultKey(userID), resultKey(partnerID)}
	code, err := s.acceptScript.Run(ctx, s.rdb, keys).Int()
	if err != nil {
		return AcceptNoMatch, fmt.Errorf("store: mark accepted: %w", err)
	}
	return code, nil
}

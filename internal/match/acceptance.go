package match

import (
	"context"
	"encoding/json"
	"log"

	"github.com/mingle/matchd/internal/metrics"
	"github.com/mingle/matchd/internal/store"
)

// Accept records the caller's acceptance of their current pairing and
// reports whether both sides have now accepted. Only when both have does
// the pairing reach durable history, and exactly one of the two accept
// calls performs that write.
func (s *Service) Accept(ctx context.Context, userID int64) (bool, error) {
	res, err := s.store.GetResult(ctx, userID)
	if err != nil {
		return false, ErrNoActiveMatch
	}
	if res == nil || !res.Matched || res.MatchedUser == nil {
		return false, ErrNoActiveMatch
	}
	partnerID := res.MatchedUser.ID

	code, err := s.store.MarkAccepted(ctx, userID, partnerID)
	if err != nil {
		return false, err
	}

	switch code {
	case store.AcceptNoMatch:
		return false, ErrNoActiveMatch
	case store.AcceptWaiting:
		metrics.Acceptances.WithLabelValues("waiting").Inc()
		return false, nil
	case store.AcceptAlreadyConfirmed:
		// Retried accept after the handshake completed: the history row
		// and the confirmed event were already produced.
		return true, nil
	}

	// Both accepted: persist the confirmed match. Best-effort — a failed
	// history write must not undo the handshake the users completed.
	if err := s.history.InsertPair(ctx, userID, partnerID, res.Score, res.IsAnonymous, res.RoomID); err != nil {
		log.Printf("[match] history write for room=%s: %v", res.RoomID, err)
	}

	metrics.Acceptances.WithLabelValues("confirmed").Inc()
	log.Printf("[match] both accepted room=%s users=%d/%d", res.RoomID, userID, partnerID)

	s.publishConfirmed(userID, partnerID, res.RoomID)
	return true, nil
}

// Reject tears the pairing down for both sides. Both users are removed
// from the queue (defensive, they should already be absent), both seeking
// states are cleared, and both results are overwritten with a short-lived
// rejection sentinel so the counterpart's next poll observes it. Always
// reported as success.
func (s *Service) Reject(ctx context.Context, userID int64) error {
	res, err := s.store.GetResult(ctx, userID)
	if err != nil || res == nil || !res.Matched || res.MatchedUser == nil {
		return nil
	}
	partnerID := res.MatchedUser.ID

	if err := s.store.DequeueMany(ctx, []int64{userID, partnerID}); err != nil {
		log.Printf("[match] reject dequeue %d/%d: %v", userID, partnerID, err)
	}
	for _, id := range []int64{userID, partnerID} {
		if err := s.store.ClearSeeking(ctx, id); err != nil {
			log.Printf("[match] reject clear seeking %d: %v", id, err)
		}
	}
	if err := s.store.SetRejected(ctx, userID, partnerID); err != nil {
		log.Printf("[match] reject sentinel %d/%d: %v", userID, partnerID, err)
	}

	metrics.Rejections.Inc()
	log.Printf("[match] rejected room=%s by user=%d", res.RoomID, userID)

	s.publishRejected(userID, res.RoomID)
	s.publishRejected(partnerID, res.RoomID)
	return nil
}

func (s *Service) publishConfirmed(userA, userB int64, roomID string) {
	if s.events == nil {
		return
	}
	pairs := []struct{ user, partner int64 }{{userA, userB}, {userB, userA}}
	for _, p := range pairs {
		data, err := json.Marshal(ConfirmedEvent{UserID: p.user, PartnerID: p.partner, RoomID: roomID})
		if err != nil {
			continue
		}
		if err := s.events.PublishMatchConfirmed(p.user, data); err != nil {
			log.Printf("[match] publish confirmed event for %d: %v", p.user, err)
		}
	}
}

func (s *Service) publishRejected(userID int64, roomID string) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(RejectedEvent{UserID: userID, RoomID: roomID})
	if err != nil {
		return
	}
	if err := s.events.PublishMatchRejected(userID, data); err != nil {
		log.Printf("[match] publish rejected event for %d: %v", userID, err)
	}
}

package match

// Publisher delivers match lifecycle events to downstream consumers (the
// realtime room infrastructure). Delivery is best-effort: a publish
// failure is logged, never surfaced to the user.
type Publisher interface {
	PublishMatchCommitted(userID int64, data []byte) error
	PublishMatchConfirmed(userID int64, data []byte) error
	PublishMatchRejected(userID int64, data []byte) error
}

// CommittedEvent announces a freshly committed pairing to one participant.
type CommittedEvent struct {
	UserID      int64  `json:"user_id"`
	PartnerID   int64  `json:"partner_id"`
	RoomID      string `json:"room_id"`
	Score       int    `json:"score"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// ConfirmedEvent announces that both sides accepted and the room is live.
type ConfirmedEvent struct {
	UserID    int64  `json:"user_id"`
	PartnerID int64  `json:"partner_id"`
	RoomID    string `json:"room_id"`
}

// RejectedEvent announces that the pairing was rejected by either side.
type RejectedEvent struct {
	UserID int64  `json:"user_id"`
	RoomID string `json:"room_id"`
}

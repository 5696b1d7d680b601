package domain

import "github.com/google/uuid"

// PresenceEntry is the ephemeral record of one live connection on a room's
// presence channel. It is never persisted; its lifetime is bounded by the
// connection's subscription.
type PresenceEntry struct {
	RoomID       uuid.UUID
	UserID       string
	DisplayName  string
	ConnectionID string
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the join-record granting a user participation rights in a
// room. It is unique per (room, user) pair; the room creator always holds
// one and can never lose it.
type Membership struct {
	RoomID   uuid.UUID
	UserID   string
	IsAdmin  bool
	JoinedAt time.Time
}

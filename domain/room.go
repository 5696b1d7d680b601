package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomKind string

const (
	RoomPublic  RoomKind = "public"
	RoomPrivate RoomKind = "private"
	// RoomDirect rooms hold exactly two members and are always private.
	RoomDirect RoomKind = "direct"
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomPublic, RoomPrivate, RoomDirect:
		return true
	}
	return false
}

// Room is the unit of membership and live fan-out. A room is soft-deleted:
// DeletedAt marks it inactive while the record stays readable for audit.
type Room struct {
	ID          uuid.UUID
	Name        string
	Description string
	Kind        RoomKind
	CreatedBy   string
	IsPrivate   bool
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

func (r Room) Deleted() bool {
	return r.DeletedAt != nil
}

// VisibleTo reports whether a user may see this room in listings: every
// non-private room, plus any room the user holds a membership in.
func (r Room) VisibleTo(userID string, isMember bool) bool {
	if r.Deleted() {
		return false
	}
	return !r.IsPrivate || isMember
}

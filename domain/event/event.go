// Package event defines the domain events fanned out to channel
// subscribers. Events are immutable values; the dispatcher routes them by
// the channel name they report.
package event

import (
	"chat-core/domain"

	"github.com/google/uuid"
)

type Event interface {
	// Channel names the subscription channel this event is delivered on.
	Channel() string
	// Name is the wire-level event type tag.
	Name() string
}

// MessageSent announces a newly persisted message. Delivery is best-effort;
// durability of the message itself is the store's job.
type MessageSent struct {
	Message domain.Message
}

func (e MessageSent) Channel() string {
	switch e.Message.Recipient.Kind {
	case domain.RecipientUser:
		return domain.UserChannel(e.Message.Recipient.ID)
	case domain.RecipientRoom:
		id, err := uuid.Parse(e.Message.Recipient.ID)
		if err != nil {
			return ""
		}
		return domain.RoomChannel(id)
	case domain.RecipientChannel:
		return domain.TopicChannel(e.Message.Recipient.ID)
	}
	return ""
}

func (e MessageSent) Name() string { return "message.sent" }

// TypingChanged is purely ephemeral: never persisted, never acknowledged.
type TypingChanged struct {
	RoomID   uuid.UUID
	UserID   string
	IsTyping bool
}

func (e TypingChanged) Channel() string { return domain.RoomChannel(e.RoomID) }
func (e TypingChanged) Name() string    { return "typing.changed" }

// MembershipChanged announces members added to or removed from a room.
// The dispatcher evicts removed members' live presence subscriptions when
// it fans this out.
type MembershipChanged struct {
	RoomID  uuid.UUID
	ActorID string
	Added   []domain.Membership
	Removed []string
}

func (e MembershipChanged) Channel() string { return domain.RoomChannel(e.RoomID) }
func (e MembershipChanged) Name() string    { return "membership.changed" }

type PresenceKind string

const (
	MemberJoined PresenceKind = "member_joined"
	MemberLeft   PresenceKind = "member_left"
)

// PresenceDelta announces a user becoming present on or absent from a
// room's presence channel. Multi-device connections collapse into one
// delta: joined fires on the first live connection, left on the last.
type PresenceDelta struct {
	RoomID uuid.UUID
	Kind   PresenceKind
	User   domain.User
}

func (e PresenceDelta) Channel() string { return domain.RoomChannel(e.RoomID) }
func (e PresenceDelta) Name() string    { return string(e.Kind) }

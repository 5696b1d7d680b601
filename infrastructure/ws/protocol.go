package ws

import (
	"time"

	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/samber/lo"
)

// ClientFrame is the JSON a connected client sends.
type ClientFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`

	RecipientKind string `json:"recipient_kind,omitempty"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Content       string `json:"content,omitempty"`

	RoomID   string `json:"room_id,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`

	MessageID string `json:"message_id,omitempty"`
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionMessage     = "message"
	ActionTyping      = "typing"
	ActionMarkRead    = "mark_read"
)

// ServerFrame is the JSON pushed to a client: domain events, subscription
// acks carrying the presence snapshot, send acks, and errors.
type ServerFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

const (
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameSent         = "sent"
	FrameError        = "error"
)

type MessagePayload struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	RecipientKind string     `json:"recipient_kind"`
	RecipientID   string     `json:"recipient_id"`
	Content       string     `json:"content"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:            m.ID.String(),
		SenderID:      m.SenderID,
		RecipientKind: string(m.Recipient.Kind),
		RecipientID:   m.Recipient.ID,
		Content:       m.Content,
		IsRead:        m.IsRead,
		ReadAt:        m.ReadAt,
		CreatedAt:     m.CreatedAt,
	}
}

type UserPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func toUserPayload(u domain.User) UserPayload {
	return UserPayload{ID: u.ID, DisplayName: u.DisplayName}
}

type PresencePayload struct {
	RoomID string      `json:"room_id"`
	User   UserPayload `json:"user"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type MembershipPayload struct {
	RoomID  string   `json:"room_id"`
	ActorID string   `json:"actor_id"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

type SnapshotPayload struct {
	Present []UserPayload `json:"present"`
}

// encodeEvent maps a domain event onto its wire frame.
func encodeEvent(e event.Event) ServerFrame {
	frame := ServerFrame{Type: e.Name(), Channel: e.Channel()}
	switch evt := e.(type) {
	case event.MessageSent:
		frame.Payload = toMessagePayload(evt.Message)
	case event.TypingChanged:
		frame.Payload = TypingPayload{
			RoomID:   evt.RoomID.String(),
			UserID:   evt.UserID,
			IsTyping: evt.IsTyping,
		}
	case event.MembershipChanged:
		frame.Payload = MembershipPayload{
			RoomID:  evt.RoomID.String(),
			ActorID: evt.ActorID,
			Added: lo.Map(evt.Added, func(m domain.Membership, _ int) string {
				return m.UserID
			}),
			Removed: evt.Removed,
		}
	case event.PresenceDelta:
		frame.Payload = PresencePayload{
			RoomID: evt.RoomID.String(),
			User:   toUserPayload(evt.User),
		}
	}
	return frame
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is an addressed chat record. Content is mutable by the sender
// only; read-state is mutable by the addressed user only.
type Message struct {
	ID        uuid.UUID
	SenderID  string
	Recipient Recipient
	Content   string
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
	DeletedAt *time.Time
}

func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

const InviteContentType = "room_invite"

// InviteContent is the structured payload of a room invitation. An
// invitation is not a distinct entity: it is a user-addressed message
// whose content carries this marker, so it lists through the same query
// path as ordinary messages.
type InviteContent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

func NewInviteContent(roomID uuid.UUID) (string, error) {
	raw, err := json.Marshal(InviteContent{Type: InviteContentType, RoomID: roomID.String()})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseInviteContent reports whether content is an invitation payload.
func ParseInviteContent(content string) (InviteContent, bool) {
	var invite InviteContent
	if err := json.Unmarshal([]byte(content), &invite); err != nil {
		return InviteContent{}, false
	}
	return invite, invite.Type == InviteContentType && invite.RoomID != ""
}

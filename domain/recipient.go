package domain

import "github.com/google/uuid"

type RecipientKind string

const (
	RecipientUser    RecipientKind = "user"
	RecipientRoom    RecipientKind = "room"
	RecipientChannel RecipientKind = "channel"
)

// Recipient is the tagged variant addressing a message. Resolution always
// goes through Kind; the ID is never type-inspected.
type Recipient struct {
	Kind RecipientKind
	ID   string
}

func UserRecipient(userID string) Recipient {
	return Recipient{Kind: RecipientUser, ID: userID}
}

func RoomRecipient(roomID uuid.UUID) Recipient {
	return Recipient{Kind: RecipientRoom, ID: roomID.String()}
}

func ChannelRecipient(channelID string) Recipient {
	return Recipient{Kind: RecipientChannel, ID: channelID}
}

func (r Recipient) Valid() bool {
	if r.ID == "" {
		return false
	}
	switch r.Kind {
	case RecipientUser, RecipientRoom, RecipientChannel:
		return true
	}
	return false
}

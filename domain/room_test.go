package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoom_VisibleTo(t *testing.T) {
	req := require.New(t)
	room := Room{ID: uuid.New(), Name: "Eng", Kind: RoomPublic, CreatedBy: "u1"}

	// Public rooms are visible to everyone
	req.True(room.VisibleTo("stranger", false))

	// Private rooms need a membership
	room.IsPrivate = true
	req.False(room.VisibleTo("stranger", false))
	req.True(room.VisibleTo("u2", true))

	// Deleted rooms are visible to nobody
	now := time.Now().UTC()
	room.DeletedAt = &now
	req.False(room.VisibleTo("u2", true))
}

func TestRoomKind_Valid(t *testing.T) {
	req := require.New(t)
	for _, kind := range []RoomKind{RoomPublic, RoomPrivate, RoomDirect} {
		req.True(kind.Valid())
	}
	req.False(RoomKind("").Valid())
	req.False(RoomKind("secret").Valid())
}

func TestRecipient_Valid(t *testing.T) {
	req := require.New(t)

	req.True(UserRecipient("u1").Valid())
	req.True(RoomRecipient(uuid.New()).Valid())
	req.True(ChannelRecipient("announcements").Valid())

	req.False(Recipient{Kind: RecipientUser}.Valid())
	req.False(Recipient{Kind: "group", ID: "g1"}.Valid())
	req.False(Recipient{}.Valid())
}

func TestInviteContent_Roundtrip(t *testing.T) {
	req := require.New(t)
	roomID := uuid.New()

	content, err := NewInviteContent(roomID)
	req.NoError(err)

	invite, ok := ParseInviteContent(content)
	req.True(ok)
	req.Equal(roomID.String(), invite.RoomID)

	// Ordinary message bodies never parse as invitations
	_, ok = ParseInviteContent("see you at standup")
	req.False(ok)
	_, ok = ParseInviteContent(`{"type":"other","room_id":"x"}`)
	req.False(ok)
}

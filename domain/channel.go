package domain

import "github.com/google/uuid"

// LobbyChannel is the public channel every authenticated connection may
// subscribe to without further checks.
const LobbyChannel = "chat"

// UserChannel names the private channel only the user themselves may
// subscribe to. Direct messages and invitations are delivered here.
func UserChannel(userID string) string {
	return "user." + userID
}

// RoomChannel names the presence channel of a room. Subscribing requires a
// current membership and exposes the subscriber's identity to co-members.
func RoomChannel(roomID uuid.UUID) string {
	return "room." + roomID.String()
}

// TopicChannel names an open broadcast channel any authenticated
// connection may subscribe to.
func TopicChannel(channelID string) string {
	return "channel." + channelID
}

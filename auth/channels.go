package auth

import (
	"fmt"
	"strings"

	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	// ChannelPublic channels deliver events to any authenticated connection.
	ChannelPublic ChannelKind = "public"
	// ChannelPrivate channels belong to exactly one user.
	ChannelPrivate ChannelKind = "private"
	// ChannelPresence channels additionally track and expose the live set
	// of connected identities.
	ChannelPresence ChannelKind = "presence"
)

// Decision is the outcome of an allowed subscribe attempt. Presence is
// the identity exposed to co-members, set only for presence channels.
type Decision struct {
	Kind     ChannelKind
	RoomID   uuid.UUID
	Presence *domain.User
}

// channelRule binds one name pattern to the relationship required to
// subscribe. The table replaces per-pattern callbacks: one dispatch
// function evaluates it, which keeps the grammar testable as data.
type channelRule struct {
	exact     string
	prefix    string
	kind      ChannelKind
	authorize func(a *ChannelAuthorizer, identity Identity, rest string) (Decision, error)
}

var channelRules = []channelRule{
	{exact: domain.LobbyChannel, kind: ChannelPublic, authorize: allowAlways},
	{prefix: "user.", kind: ChannelPrivate, authorize: allowSelf},
	{prefix: "channel.", kind: ChannelPublic, authorize: allowAuthenticated},
	{prefix: "room.", kind: ChannelPresence, authorize: allowMember},
}

// ChannelAuthorizer decides, per connection and per channel name, whether
// a subscribe attempt is permitted. Nothing is cached: membership is read
// on every attempt so a removal revokes new subscriptions immediately.
type ChannelAuthorizer struct {
	rooms repositories.IRoomRepository
}

func NewChannelAuthorizer(rooms repositories.IRoomRepository) *ChannelAuthorizer {
	return &ChannelAuthorizer{rooms: rooms}
}

// Authorize resolves the channel name against the rule table. Any name
// outside the grammar, and any failed relationship check, is Forbidden.
func (a *ChannelAuthorizer) Authorize(identity Identity, channel string) (Decision, error) {
	if !identity.Authenticated() {
		return Decision{}, fmt.Errorf("%w: unauthenticated connection", errors.ErrForbidden)
	}
	for _, rule := range channelRules {
		switch {
		case rule.exact != "":
			if channel == rule.exact {
				return rule.authorize(a, identity, "")
			}
		case strings.HasPrefix(channel, rule.prefix):
			rest := strings.TrimPrefix(channel, rule.prefix)
			if rest == "" {
				return Decision{}, forbiddenChannel(channel)
			}
			return rule.authorize(a, identity, rest)
		}
	}
	return Decision{}, forbiddenChannel(channel)
}

func forbiddenChannel(channel string) error {
	return fmt.Errorf("%w: channel %q", errors.ErrForbidden, channel)
}

func allowAlways(_ *ChannelAuthorizer, _ Identity, _ string) (Decision, error) {
	return Decision{Kind: ChannelPublic}, nil
}

func allowSelf(_ *ChannelAuthorizer, identity Identity, rest string) (Decision, error) {
	if identity.User.ID != rest {
		return Decision{}, fmt.Errorf("%w: user channel belongs to someone else", errors.ErrForbidden)
	}
	return Decision{Kind: ChannelPrivate}, nil
}

func allowAuthenticated(_ *ChannelAuthorizer, _ Identity, _ string) (Decision, error) {
	// Authenticated was already established at dispatch.
	return Decision{Kind: ChannelPublic}, nil
}

// allowMember admits current members of an active room and hands back the
// identity shown to co-members on the presence channel.
func allowMember(a *ChannelAuthorizer, identity Identity, rest string) (Decision, error) {
	roomID, err := uuid.Parse(rest)
	if err != nil {
		return Decision{}, forbiddenChannel("room." + rest)
	}
	room, err := a.rooms.GetRoom(roomID)
	if err != nil || room.Deleted() {
		return Decision{}, fmt.Errorf("%w: room %s is not joinable", errors.ErrForbidden, roomID)
	}
	isMember, err := a.rooms.IsMember(roomID, identity.User.ID)
	if err != nil {
		return Decision{}, err
	}
	if !isMember {
		return Decision{}, fmt.Errorf("%w: %s is not a member of room %s", errors.ErrForbidden, identity.User.ID, roomID)
	}
	user := identity.User
	return Decision{Kind: ChannelPresence, RoomID: roomID, Presence: &user}, nil
}

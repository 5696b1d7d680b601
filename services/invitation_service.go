package services

import (
	"context"
	"log/slog"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IInvitationService interface {
	Invite(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string) (InviteResult, error)
}

type InviteResult struct {
	Members     []domain.Membership
	Invitations []domain.Message
}

// InvitationService composes the room registry and the message store:
// inviting is adding members plus one trackable notification per new
// member, listable through the ordinary message query path.
type InvitationService struct {
	rooms    IRoomService
	messages IMessageService
	log      *slog.Logger
}

func NewInvitationService(rooms IRoomService, messages IMessageService, log *slog.Logger) *InvitationService {
	return &InvitationService{rooms: rooms, messages: messages, log: log}
}

// Invite adds the given users to the room (authorization delegated to the
// room registry) and sends each newly added member a room_invite message.
// Users who were already members are skipped; if nobody new remains, the
// call fails with a validation error.
func (s *InvitationService) Invite(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string) (InviteResult, error) {
	change, err := s.rooms.AddMembers(ctx, actorID, roomID, userIDs, false)
	if err != nil {
		return InviteResult{}, err
	}
	if len(change.Changed) == 0 {
		return InviteResult{}, errors.Validationf("no new members to invite")
	}

	content, err := domain.NewInviteContent(roomID)
	if err != nil {
		return InviteResult{}, err
	}

	invitations := make([]domain.Message, 0, len(change.Changed))
	for _, userID := range lo.Map(change.Changed, func(m domain.Membership, _ int) string { return m.UserID }) {
		message, err := s.messages.Send(ctx, SendCommand{
			SenderID:  actorID,
			Recipient: domain.UserRecipient(userID),
			Content:   content,
		})
		if err != nil {
			// The membership is already in place; a lost notification is
			// recoverable by re-listing rooms, so log and keep going.
			s.log.Warn("invitation message failed", "room_id", roomID, "user_id", userID, "error", err)
			continue
		}
		invitations = append(invitations, message)
	}
	return InviteResult{Members: change.Members, Invitations: invitations}, nil
}

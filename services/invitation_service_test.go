package services

import (
	"context"
	"log/slog"
	"testing"

	"chat-core/domain"
	"chat-core/errors"
	"chat-core/mocks"
	"chat-core/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newInvitationService(t *testing.T) (*InvitationService, messageFixture) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctrl := gomock.NewController(t)
	directory := mocks.NewMockUserDirectory(ctrl)
	publisher := &recordingPublisher{}
	roomRepo := repositories.NewRoomRepository(db, slog.Default())
	rooms := NewRoomService(roomRepo, publisher, slog.Default())
	messages := NewMessageService(
		repositories.NewMessageRepository(db, slog.Default()),
		roomRepo,
		directory,
		publisher,
		slog.Default(),
	)
	f := messageFixture{service: messages, rooms: rooms, directory: directory, publisher: publisher}
	return NewInvitationService(rooms, messages, slog.Default()), f
}

func TestInvitationService_Invite_Notifies_Only_New_Members(t *testing.T) {
	req := require.New(t)
	service, f := newInvitationService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{
		CreatorID: "u1",
		Name:      "Eng",
		MemberIDs: []string{"u2"},
	})
	req.NoError(err)

	// u2 is already a member, so only u3 gets an invitation
	f.directory.EXPECT().Lookup(gomock.Any(), "u3").Return(domain.User{ID: "u3"}, nil)

	result, err := service.Invite(ctx, "u1", room.ID, []string{"u2", "u3"})
	req.NoError(err)
	req.Len(result.Members, 3)
	req.Len(result.Invitations, 1)

	invitation := result.Invitations[0]
	req.Equal(domain.UserRecipient("u3"), invitation.Recipient)

	invite, ok := domain.ParseInviteContent(invitation.Content)
	req.True(ok)
	req.Equal(room.ID.String(), invite.RoomID)
}

func TestInvitationService_Invite_All_Existing_Fails(t *testing.T) {
	req := require.New(t)
	service, f := newInvitationService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{
		CreatorID: "u1",
		Name:      "Eng",
		MemberIDs: []string{"u2"},
	})
	req.NoError(err)

	_, err = service.Invite(ctx, "u1", room.ID, []string{"u2"})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestInvitationService_Invite_Requires_Manager(t *testing.T) {
	req := require.New(t)
	service, f := newInvitationService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{
		CreatorID: "u1",
		Name:      "Eng",
		MemberIDs: []string{"u2"},
	})
	req.NoError(err)

	_, err = service.Invite(ctx, "u2", room.ID, []string{"u3"})
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestInvitationService_Invite_Keeps_Membership_On_Send_Failure(t *testing.T) {
	req := require.New(t)
	service, f := newInvitationService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{CreatorID: "u1", Name: "Eng"})
	req.NoError(err)

	// The invitee has never connected, so the directory cannot resolve it.
	// Membership must still stick.
	f.directory.EXPECT().Lookup(gomock.Any(), "u3").Return(domain.User{}, errors.NotFoundf("user u3"))

	result, err := service.Invite(ctx, "u1", room.ID, []string{"u3"})
	req.NoError(err)
	req.Empty(result.Invitations)
	req.True(lo.ContainsBy(result.Members, func(m domain.Membership) bool { return m.UserID == "u3" }))
}

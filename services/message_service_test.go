package services

import (
	"context"
	"log/slog"
	"testing"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/mocks"
	"chat-core/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type messageFixture struct {
	service   *MessageService
	rooms     *RoomService
	directory *mocks.MockUserDirectory
	publisher *recordingPublisher
}

func newMessageService(t *testing.T) messageFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctrl := gomock.NewController(t)
	directory := mocks.NewMockUserDirectory(ctrl)
	publisher := &recordingPublisher{}
	roomRepo := repositories.NewRoomRepository(db, slog.Default())
	return messageFixture{
		service: NewMessageService(
			repositories.NewMessageRepository(db, slog.Default()),
			roomRepo,
			directory,
			publisher,
			slog.Default(),
		),
		rooms:     NewRoomService(roomRepo, publisher, slog.Default()),
		directory: directory,
		publisher: publisher,
	}
}

func TestMessageService_Send_To_User(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), "u2").Return(domain.User{ID: "u2", DisplayName: "Bob"}, nil)

	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
		Content:   "hello",
	})
	req.NoError(err)
	req.False(message.IsRead)

	events := f.publisher.all()
	req.Len(events, 1)
	sent, ok := events[0].(event.MessageSent)
	req.True(ok)
	req.Equal(message.ID, sent.Message.ID)
	req.Equal("user.u2", sent.Channel())
}

func TestMessageService_Send_To_Unknown_User_Fails(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)

	f.directory.EXPECT().Lookup(gomock.Any(), "ghost").Return(domain.User{}, errors.NotFoundf("user ghost"))

	_, err := f.service.Send(context.Background(), SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("ghost"),
		Content:   "hello",
	})
	req.ErrorIs(err, errors.ErrNotFound)
	req.Empty(f.publisher.all())
}

func TestMessageService_Send_Empty_Content_Fails(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)

	_, err := f.service.Send(context.Background(), SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
	})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestMessageService_Send_To_Room_Skips_Membership_Check(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{CreatorID: "u1", Name: "Eng"})
	req.NoError(err)
	f.publisher.events = nil

	// u9 is not a member, yet the send goes through: delivery gating
	// happens at subscription time, not here.
	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u9",
		Recipient: domain.RoomRecipient(room.ID),
		Content:   "drive-by",
	})
	req.NoError(err)
	req.Equal(domain.RoomChannel(room.ID), event.MessageSent{Message: message}.Channel())
}

func TestMessageService_Send_To_Missing_Room_Fails(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)

	_, err := f.service.Send(context.Background(), SendCommand{
		SenderID:  "u1",
		Recipient: domain.RoomRecipient(uuid.New()),
		Content:   "hello",
	})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), "u2").Return(domain.User{ID: "u2"}, nil)
	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
		Content:   "hello",
	})
	req.NoError(err)

	req.NoError(f.service.MarkRead(ctx, "u2", message.ID))
	req.NoError(f.service.MarkRead(ctx, "u2", message.ID))

	stored, err := f.service.messages.Get(message.ID)
	req.NoError(err)
	req.True(stored.IsRead)
	req.NotNil(stored.ReadAt)
}

func TestMessageService_MarkRead_Wrong_User_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), "u2").Return(domain.User{ID: "u2"}, nil)
	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
		Content:   "hello",
	})
	req.NoError(err)

	err = f.service.MarkRead(ctx, "u3", message.ID)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMessageService_MarkRead_Deleted_Message_Fails(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), "u2").Return(domain.User{ID: "u2"}, nil)
	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
		Content:   "hello",
	})
	req.NoError(err)
	req.NoError(f.service.Delete(ctx, "u1", message.ID))

	// A retracted message reads as gone, even for its addressee
	err = f.service.MarkRead(ctx, "u2", message.ID)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_Update_And_Delete_Are_Sender_Only(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), "u2").Return(domain.User{ID: "u2"}, nil)
	message, err := f.service.Send(ctx, SendCommand{
		SenderID:  "u1",
		Recipient: domain.UserRecipient("u2"),
		Content:   "hello",
	})
	req.NoError(err)

	_, err = f.service.Update(ctx, "u2", message.ID, "edited")
	req.ErrorIs(err, errors.ErrForbidden)

	updated, err := f.service.Update(ctx, "u1", message.ID, "edited")
	req.NoError(err)
	req.Equal("edited", updated.Content)
	req.Equal(message.CreatedAt, updated.CreatedAt)

	err = f.service.Delete(ctx, "u2", message.ID)
	req.ErrorIs(err, errors.ErrForbidden)
	req.NoError(f.service.Delete(ctx, "u1", message.ID))

	// Deleting twice is harmless, editing a deleted message is not
	req.NoError(f.service.Delete(ctx, "u1", message.ID))
	_, err = f.service.Update(ctx, "u1", message.ID, "too late")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_List_Clamps_UnreadOnly_To_Caller(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(domain.User{}, nil).AnyTimes()

	first, err := f.service.Send(ctx, SendCommand{SenderID: "u1", Recipient: domain.UserRecipient("u2"), Content: "one"})
	req.NoError(err)
	_, err = f.service.Send(ctx, SendCommand{SenderID: "u1", Recipient: domain.UserRecipient("u2"), Content: "two"})
	req.NoError(err)
	req.NoError(f.service.MarkRead(ctx, "u2", first.ID))

	// UnreadOnly ignores whatever recipient the caller asked for
	messages, _, err := f.service.List(ctx, "u2", ListQuery{
		Recipient:  domain.UserRecipient("u1"),
		UnreadOnly: true,
		Limit:      10,
	})
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("two", messages[0].Content)
}

func TestMessageService_List_Sent_By_Caller(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	f.directory.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(domain.User{}, nil).AnyTimes()
	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{CreatorID: "u1", Name: "Eng"})
	req.NoError(err)

	// u1 writes to a user and to a room; u2 writes too
	_, err = f.service.Send(ctx, SendCommand{SenderID: "u1", Recipient: domain.UserRecipient("u2"), Content: "direct"})
	req.NoError(err)
	_, err = f.service.Send(ctx, SendCommand{SenderID: "u1", Recipient: domain.RoomRecipient(room.ID), Content: "room"})
	req.NoError(err)
	_, err = f.service.Send(ctx, SendCommand{SenderID: "u2", Recipient: domain.UserRecipient("u1"), Content: "reply"})
	req.NoError(err)

	// A recipient-less query pages everything the caller sent
	messages, _, err := f.service.List(ctx, "u1", ListQuery{SenderID: "u1", Limit: 10})
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("room", messages[0].Content)
	req.Equal("direct", messages[1].Content)

	// But never what somebody else sent
	_, _, err = f.service.List(ctx, "u1", ListQuery{SenderID: "u2", Limit: 10})
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMessageService_List_Denies_Foreign_Inbox(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)

	_, _, err := f.service.List(context.Background(), "u1", ListQuery{
		Recipient: domain.UserRecipient("u2"),
		Limit:     10,
	})
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMessageService_ListForRoom(t *testing.T) {
	req := require.New(t)
	f := newMessageService(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, CreateRoomCommand{CreatorID: "u1", Name: "Eng"})
	req.NoError(err)

	for _, content := range []string{"one", "two", "three"} {
		_, err = f.service.Send(ctx, SendCommand{
			SenderID:  "u1",
			Recipient: domain.RoomRecipient(room.ID),
			Content:   content,
		})
		req.NoError(err)
	}

	messages, cursor, err := f.service.ListForRoom(ctx, room.ID, nil, 2)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("three", messages[0].Content)
	req.NotNil(cursor)

	rest, _, err := f.service.ListForRoom(ctx, room.ID, cursor, 2)
	req.NoError(err)
	req.Len(rest, 1)
	req.Equal("one", rest[0].Content)
}

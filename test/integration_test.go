package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/observability"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"chat-core/sink"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// Test_Scenario walks one room through its whole life: creation,
// subscriptions with presence, message fan-out, an invitation, and a
// removal that force-drops the removed member's live stream.
func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	dispatcher := runtime.NewDispatcher(log, 64)
	presence := runtime.NewPresenceTracker()
	directory := auth.NewSessionDirectory()

	roomRepo := repositories.NewRoomRepository(db, log)
	messageRepo := repositories.NewMessageRepository(db, log)
	roomService := services.NewRoomService(roomRepo, dispatcher, log)
	messageService := services.NewMessageService(messageRepo, roomRepo, directory, dispatcher, log)
	invitationService := services.NewInvitationService(roomService, messageService, log)
	authorizer := auth.NewChannelAuthorizer(roomRepo)

	monitor := observability.NewMonitor(log, 500*time.Millisecond)
	supervisor := workers.NewSupervisor(log).
		Add(workers.NewTelemetry(log, dispatcher.Telemetry, monitor), monitor)
	go supervisor.Run(ctx)
	t.Cleanup(supervisor.Stop)

	alice := auth.Identity{User: domain.User{ID: "alice", DisplayName: "Alice"}}
	bob := auth.Identity{User: domain.User{ID: "bob", DisplayName: "Bob"}}
	for _, identity := range []auth.Identity{alice, bob, {User: domain.User{ID: "carol", DisplayName: "Carol"}}} {
		directory.Record(identity.User)
	}

	// 1. Alice creates a room with Bob as initial member
	room, err := roomService.CreateRoom(ctx, services.CreateRoomCommand{
		CreatorID: alice.User.ID,
		Name:      "Eng",
		MemberIDs: []string{bob.User.ID},
	})
	req.NoError(err)
	channel := domain.RoomChannel(room.ID)

	// 2. Both members subscribe to the room's presence channel, the way the
	// gateway does it: authorize, join presence, then attach the sink.
	subscribe := func(identity auth.Identity, connectionID string) (*sink.ChannelSink, []domain.User) {
		decision, err := authorizer.Authorize(identity, channel)
		req.NoError(err)
		req.Equal(auth.ChannelPresence, decision.Kind)

		snapshot, _ := presence.Join(domain.PresenceEntry{
			RoomID:       room.ID,
			ConnectionID: connectionID,
			UserID:       identity.User.ID,
			DisplayName:  identity.User.DisplayName,
		})
		s := sink.NewChannelSink(16)
		dispatcher.Subscribe(channel, runtime.Subscription{
			ConnectionID: connectionID,
			UserID:       identity.User.ID,
			Sink:         s,
		})
		return s, snapshot
	}

	aliceSink, snapshot := subscribe(alice, "conn-alice")
	req.Empty(snapshot)
	bobSink, snapshot := subscribe(bob, "conn-bob")
	req.Len(snapshot, 1)
	req.Equal("alice", snapshot[0].ID)
	req.Equal(2, dispatcher.Subscribers(channel))

	// A diagnostics projection rides along as a plain subscriber
	timeline := sink.NewTimeline()
	dispatcher.Subscribe(channel, runtime.Subscription{ConnectionID: "conn-timeline", UserID: "observer", Sink: timeline})

	// 3. Alice posts a message; everyone on the channel receives it
	message, err := messageService.Send(ctx, services.SendCommand{
		SenderID:  alice.User.ID,
		Recipient: domain.RoomRecipient(room.ID),
		Content:   "standup in 5",
	})
	req.NoError(err)

	waitEvent := func(s *sink.ChannelSink) {
		select {
		case evt := <-s.Events:
			req.Equal("message.sent", evt.Name())
		case <-time.After(2 * time.Second):
			req.Fail("Timeout: message never reached the sink")
		}
	}
	waitEvent(aliceSink)
	waitEvent(bobSink)
	req.Len(timeline.Snapshot(), 1)
	req.Equal(message.ID, timeline.Snapshot()[0].ID)

	// And the message is durable, listable newest-first
	stored, _, err := messageService.ListForRoom(ctx, room.ID, nil, 10)
	req.NoError(err)
	req.Len(stored, 1)

	// 4. Alice invites Carol; the membership lands and Carol is notified on
	// her private channel
	result, err := invitationService.Invite(ctx, alice.User.ID, room.ID, []string{"carol"})
	req.NoError(err)
	req.Len(result.Invitations, 1)

	inbox, _, err := messageService.List(ctx, "carol", services.ListQuery{
		Recipient: domain.UserRecipient("carol"),
		Limit:     10,
	})
	req.NoError(err)
	req.Len(inbox, 1)
	invite, ok := domain.ParseInviteContent(inbox[0].Content)
	req.True(ok)
	req.Equal(room.ID.String(), invite.RoomID)

	// 5. Alice removes Bob: the removal event reaches him, then his live
	// subscription is torn down within the same dispatch cycle
	_, err = roomService.RemoveMembers(ctx, alice.User.ID, room.ID, []string{bob.User.ID})
	req.NoError(err)

	select {
	case evt := <-bobSink.Events:
		req.Equal("membership.changed", evt.Name())
	case <-time.After(2 * time.Second):
		req.Fail("Timeout: removal never reached the sink")
	}
	select {
	case <-bobSink.Done():
	case <-time.After(2 * time.Second):
		req.Fail("Timeout: evicted sink never closed")
	}
	req.Equal(2, dispatcher.Subscribers(channel)) // alice + timeline

	// Bob's next subscribe attempt is refused outright
	_, err = authorizer.Authorize(bob, channel)
	req.Error(err)

	// The connection teardown that follows the closed sink releases presence
	user, last := presence.Leave(room.ID, "conn-bob")
	req.Equal("bob", user.ID)
	req.True(last)
	req.Len(presence.Snapshot(room.ID), 1)
}

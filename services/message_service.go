package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/google/uuid"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

type IMessageService interface {
	Send(ctx context.Context, cmd SendCommand) (domain.Message, error)
	MarkRead(ctx context.Context, userID string, messageID uuid.UUID) error
	Update(ctx context.Context, actorID string, messageID uuid.UUID, content string) (domain.Message, error)
	Delete(ctx context.Context, actorID string, messageID uuid.UUID) error
	List(ctx context.Context, callerID string, query ListQuery) ([]domain.Message, *string, error)
	ListForRoom(ctx context.Context, roomID uuid.UUID, cursor *string, limit int) ([]domain.Message, *string, error)
}

type SendCommand struct {
	SenderID  string `validate:"required"`
	Recipient domain.Recipient
	Content   string `validate:"required"`
}

// ListQuery pages a timeline newest-first. Cursor semantics come from the
// repository: nil starts at the newest record, the returned cursor resumes
// below the last one.
type ListQuery struct {
	Recipient  domain.Recipient
	SenderID   string
	UnreadOnly bool
	Cursor     *string
	Limit      int
}

type MessageService struct {
	messages  repositories.IMessageRepository
	rooms     repositories.IRoomRepository
	directory contract.UserDirectory
	publisher contract.Publisher
	log       *slog.Logger
}

func NewMessageService(messages repositories.IMessageRepository, rooms repositories.IRoomRepository,
	directory contract.UserDirectory, publisher contract.Publisher, log *slog.Logger) *MessageService {
	return &MessageService{
		messages:  messages,
		rooms:     rooms,
		directory: directory,
		publisher: publisher,
		log:       log,
	}
}

// Send persists the message and only then fans it out: the sender's
// acknowledgment never waits on a slow subscriber.
//
// Room recipients get no membership check here. Delivery authorization
// lives in the channel authorizer: a sender who just left a room may still
// address it, and whoever wires an API above this decides whether to
// double-check.
func (s *MessageService) Send(ctx context.Context, cmd SendCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, errors.Validationf("send: %v", err)
	}
	if !cmd.Recipient.Valid() {
		return domain.Message{}, errors.Validationf("invalid recipient")
	}

	switch cmd.Recipient.Kind {
	case domain.RecipientUser:
		if _, err := s.directory.Lookup(ctx, cmd.Recipient.ID); err != nil {
			return domain.Message{}, errors.NotFoundf("user %s", cmd.Recipient.ID)
		}
	case domain.RecipientRoom:
		roomID, err := uuid.Parse(cmd.Recipient.ID)
		if err != nil {
			return domain.Message{}, errors.Validationf("malformed room id %q", cmd.Recipient.ID)
		}
		room, err := s.rooms.GetRoom(roomID)
		if err != nil {
			return domain.Message{}, err
		}
		if room.Deleted() {
			return domain.Message{}, errors.NotFoundf("room %s", roomID)
		}
	case domain.RecipientChannel:
		// Open broadcast channels have no registry; any id is addressable.
	}

	message := domain.Message{
		ID:        uuid.New(),
		SenderID:  cmd.SenderID,
		Recipient: cmd.Recipient,
		Content:   cmd.Content,
		CreatedAt: nowUTC(),
	}
	if err := s.messages.Store(message); err != nil {
		return domain.Message{}, err
	}
	s.publisher.Publish(ctx, event.MessageSent{Message: message})
	return message, nil
}

// MarkRead flips the read flag for the addressed user. Repeated calls are
// no-ops, not errors: network retries must be harmless.
func (s *MessageService) MarkRead(ctx context.Context, userID string, messageID uuid.UUID) error {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if message.Deleted() {
		return errors.NotFoundf("message %s", messageID)
	}
	if message.Recipient.Kind != domain.RecipientUser || message.Recipient.ID != userID {
		return fmt.Errorf("%w: message %s is not addressed to %s", errors.ErrForbidden, messageID, userID)
	}
	if message.IsRead {
		return nil
	}
	now := nowUTC()
	message.IsRead = true
	message.ReadAt = &now
	return s.messages.Update(message)
}

func (s *MessageService) Update(ctx context.Context, actorID string, messageID uuid.UUID, content string) (domain.Message, error) {
	if content == "" {
		return domain.Message{}, errors.Validationf("content cannot be empty")
	}
	message, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if message.SenderID != actorID {
		return domain.Message{}, fmt.Errorf("%w: only the sender edits a message", errors.ErrForbidden)
	}
	if message.Deleted() {
		return domain.Message{}, errors.NotFoundf("message %s", messageID)
	}
	message.Content = content
	if err = s.messages.Update(message); err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

func (s *MessageService) Delete(ctx context.Context, actorID string, messageID uuid.UUID) error {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if message.SenderID != actorID {
		return fmt.Errorf("%w: only the sender deletes a message", errors.ErrForbidden)
	}
	if message.Deleted() {
		return nil
	}
	now := nowUTC()
	message.DeletedAt = &now
	return s.messages.Update(message)
}

// List pages messages newest-first. unreadOnly is clamped to the caller's
// own inbox, one user can never page through another's user-addressed
// messages, and a recipient-less query (the "messages I sent" view) only
// covers the caller's own sends; all three rules close cross-user leakage.
func (s *MessageService) List(ctx context.Context, callerID string, query ListQuery) ([]domain.Message, *string, error) {
	if query.UnreadOnly {
		query.Recipient = domain.UserRecipient(callerID)
	}
	if query.Recipient.Kind == domain.RecipientUser && query.Recipient.ID != callerID {
		return nil, nil, fmt.Errorf("%w: cannot list another user's messages", errors.ErrForbidden)
	}
	if !query.Recipient.Valid() && query.SenderID != callerID {
		return nil, nil, fmt.Errorf("%w: a sender-only query covers your own messages", errors.ErrForbidden)
	}
	return s.messages.List(repositories.ListFilter{
		Recipient:  query.Recipient,
		SenderID:   query.SenderID,
		UnreadOnly: query.UnreadOnly,
	}, query.Cursor, query.Limit)
}

func (s *MessageService) ListForRoom(ctx context.Context, roomID uuid.UUID, cursor *string, limit int) ([]domain.Message, *string, error) {
	return s.messages.List(repositories.ListFilter{
		Recipient: domain.RoomRecipient(roomID),
	}, cursor, limit)
}

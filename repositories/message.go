//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(messageID uuid.UUID) (domain.Message, error)
	Update(message domain.Message) error
	List(filter ListFilter, cursor *string, limit int) ([]domain.Message, *string, error)
}

// ListFilter narrows a timeline scan. A valid Recipient selects the
// recipient timeline; without one, SenderID selects the sender index
// instead, so "everything X sent" pages without a recipient. At least
// one of the two must be set. UnreadOnly is applied per record.
type ListFilter struct {
	Recipient  domain.Recipient
	SenderID   string
	UnreadOnly bool
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// timelineKey is formatted as "msg:{kind}:{recipient}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message id as a collision
//     disconnector if two messages land on the same nanosecond.
func timelineKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:%019d:%s",
		m.Recipient.Kind,
		m.Recipient.ID,
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func timelinePrefix(recipient domain.Recipient) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:", recipient.Kind, recipient.ID))
}

// idKey points from the message id to its timeline key, so read-state and
// edit operations can address a message without knowing its recipient.
func idKey(messageID uuid.UUID) []byte {
	return []byte("msgid:" + messageID.String())
}

// senderKey indexes a message under its sender, same timestamp layout as
// the timeline key. The value is the timeline key, like the id index.
func senderKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("sent:%s:%019d:%s", m.SenderID, m.CreatedAt.UnixNano(), m.ID))
}

func senderPrefix(senderID string) []byte {
	return []byte("sent:" + senderID + ":")
}

// Store persists the timeline record plus the id and sender indexes in
// one transaction.
func (m MessageRepository) Store(message domain.Message) error {
	raw, err := cbor.Marshal(message)
	if err != nil {
		return err
	}
	key := timelineKey(message)
	return mapTxnErr(m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		if err := txn.Set(senderKey(message), key); err != nil {
			return err
		}
		return txn.Set(idKey(message.ID), key)
	}))
}

func (m MessageRepository) Get(messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getByID(txn, messageID)
		return err
	})
	return message, err
}

func getByID(txn *badger.Txn, messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	ref, err := txn.Get(idKey(messageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return message, errors.NotFoundf("message %s", messageID)
	}
	if err != nil {
		return message, err
	}
	var key []byte
	if key, err = ref.ValueCopy(nil); err != nil {
		return message, err
	}
	item, err := txn.Get(key)
	if err != nil {
		return message, err
	}
	err = item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &message)
	})
	return message, err
}

// Update rewrites the record in place. CreatedAt and recipient never
// change, so the timeline key is stable and no index maintenance is
// needed. The read and the write share one transaction: concurrent
// mutations of the same message surface as a Conflict instead of a lost
// update.
func (m MessageRepository) Update(message domain.Message) error {
	return mapTxnErr(m.db.Update(func(txn *badger.Txn) error {
		current, err := getByID(txn, message.ID)
		if err != nil {
			return err
		}
		if current.CreatedAt != message.CreatedAt || current.Recipient != message.Recipient {
			return fmt.Errorf("%w: message address is immutable", errors.ErrOperationNotAllowed)
		}
		raw, err := cbor.Marshal(message)
		if err != nil {
			return err
		}
		return txn.Set(timelineKey(message), raw)
	}))
}

// List walks a timeline newest-first: the recipient's when the filter
// carries one, otherwise the sender index. The cursor is the key part
// after the prefix of the last returned record; passing it back resumes
// the scan just below it. Soft-deleted records are skipped and consume
// no page slots.
func (m MessageRepository) List(filter ListFilter, cursor *string, limit int) ([]domain.Message, *string, error) {
	var prefix []byte
	bySender := false
	switch {
	case filter.Recipient.Valid():
		prefix = timelinePrefix(filter.Recipient)
	case filter.SenderID != "":
		prefix = senderPrefix(filter.SenderID)
		bySender = true
	default:
		return nil, nil, errors.Validationf("list requires a recipient or a sender")
	}
	var messages []domain.Message
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixLen := len(prefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			item := it.Item()
			var message domain.Message
			var err error
			if bySender {
				// The index entry holds the timeline key; one extra hop.
				err = item.Value(func(ref []byte) error {
					record, err := txn.Get(ref)
					if err != nil {
						return err
					}
					return record.Value(func(value []byte) error {
						return cbor.Unmarshal(value, &message)
					})
				})
			} else {
				err = item.Value(func(value []byte) error {
					return cbor.Unmarshal(value, &message)
				})
			}
			if err != nil {
				return err
			}
			lastKey = string(item.Key()[prefixLen:])
			if message.Deleted() {
				continue
			}
			if filter.SenderID != "" && message.SenderID != filter.SenderID {
				continue
			}
			if filter.UnreadOnly && message.IsRead {
				continue
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

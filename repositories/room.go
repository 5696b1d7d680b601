//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Key schemas:
//
//	room:{room_uuid}                -> cbor(Room)
//	member:{room_uuid}:{user_id}    -> cbor(Membership)
//
// Memberships live under the room prefix so one prefix scan yields the
// member set, and existence of a single key answers "is user a member".
type IRoomRepository interface {
	CreateRoom(room domain.Room, members []domain.Membership) error
	GetRoom(roomID uuid.UUID) (domain.Room, error)
	UpdateRoom(room domain.Room) error
	ListVisibleRooms(userID string) ([]domain.Room, error)
	AddMembers(roomID uuid.UUID, members []domain.Membership) ([]domain.Membership, error)
	RemoveMembers(roomID uuid.UUID, userIDs []string) ([]string, error)
	SetMemberAdmin(roomID uuid.UUID, userID string, isAdmin bool) error
	GetMembership(roomID uuid.UUID, userID string) (domain.Membership, error)
	ListMembers(roomID uuid.UUID) ([]domain.Membership, error)
	IsMember(roomID uuid.UUID, userID string) (bool, error)
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

func roomKey(roomID uuid.UUID) []byte {
	return []byte("room:" + roomID.String())
}

func memberKey(roomID uuid.UUID, userID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", roomID, userID))
}

func memberPrefix(roomID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("member:%s:", roomID))
}

// mapTxnErr folds Badger's optimistic-concurrency failure into the domain
// taxonomy so callers can retry or report a Conflict uniformly.
func mapTxnErr(err error) error {
	if stderrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: concurrent room mutation", errors.ErrConflict)
	}
	return err
}

// CreateRoom writes the room and its initial member set in one
// transaction, so a half-created room is never observable.
func (r RoomRepository) CreateRoom(room domain.Room, members []domain.Membership) error {
	return mapTxnErr(r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("%w: room %s already exists", errors.ErrConflict, room.ID)
		}
		raw, err := cbor.Marshal(room)
		if err != nil {
			return err
		}
		if err = txn.Set(roomKey(room.ID), raw); err != nil {
			return err
		}
		for _, m := range members {
			rawMember, err := cbor.Marshal(m)
			if err != nil {
				return err
			}
			if err = txn.Set(memberKey(room.ID, m.UserID), rawMember); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (r RoomRepository) GetRoom(roomID uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(roomID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("room %s", roomID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &room)
		})
	})
	return room, err
}

func (r RoomRepository) UpdateRoom(room domain.Room) error {
	return mapTxnErr(r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("room %s", room.ID)
		} else if err != nil {
			return err
		}
		raw, err := cbor.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(room.ID), raw)
	}))
}

// ListVisibleRooms scans every room and keeps the ones userID may see:
// all non-private rooms plus any room the user holds a membership in.
// Soft-deleted rooms are excluded. Order is ascending by id, which is the
// natural key order of the scan.
func (r RoomRepository) ListVisibleRooms(userID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := []byte("room:")
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room domain.Room
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &room)
			})
			if err != nil {
				return err
			}
			if room.Deleted() {
				continue
			}
			isMember := false
			if room.IsPrivate {
				if _, err = txn.Get(memberKey(room.ID, userID)); err == nil {
					isMember = true
				}
			}
			if room.VisibleTo(userID, isMember) {
				rooms = append(rooms, room)
			}
		}
		return nil
	})
	return rooms, err
}

// AddMembers inserts memberships inside one transaction, skipping ids that
// are already members. The existence check and the insert share the
// transaction, so two concurrent calls can never produce a duplicate pair;
// one of them fails with a Conflict and the caller retries or reports.
func (r RoomRepository) AddMembers(roomID uuid.UUID, members []domain.Membership) ([]domain.Membership, error) {
	var added []domain.Membership
	err := r.db.Update(func(txn *badger.Txn) error {
		added = added[:0]
		for _, m := range members {
			if _, err := txn.Get(memberKey(roomID, m.UserID)); err == nil {
				continue // already a member, silently skipped
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			raw, err := cbor.Marshal(m)
			if err != nil {
				return err
			}
			if err = txn.Set(memberKey(roomID, m.UserID), raw); err != nil {
				return err
			}
			added = append(added, m)
		}
		return nil
	})
	if err != nil {
		return nil, mapTxnErr(err)
	}
	return added, nil
}

// RemoveMembers deletes memberships in one transaction and returns the ids
// that actually held one.
func (r RoomRepository) RemoveMembers(roomID uuid.UUID, userIDs []string) ([]string, error) {
	var removed []string
	err := r.db.Update(func(txn *badger.Txn) error {
		removed = removed[:0]
		for _, userID := range userIDs {
			if _, err := txn.Get(memberKey(roomID, userID)); stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if err := txn.Delete(memberKey(roomID, userID)); err != nil {
				return err
			}
			removed = append(removed, userID)
		}
		return nil
	})
	if err != nil {
		return nil, mapTxnErr(err)
	}
	return removed, nil
}

func (r RoomRepository) SetMemberAdmin(roomID uuid.UUID, userID string, isAdmin bool) error {
	return mapTxnErr(r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(roomID, userID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("membership %s in room %s", userID, roomID)
		}
		if err != nil {
			return err
		}
		var membership domain.Membership
		if err = item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &membership)
		}); err != nil {
			return err
		}
		membership.IsAdmin = isAdmin
		raw, err := cbor.Marshal(membership)
		if err != nil {
			return err
		}
		return txn.Set(memberKey(roomID, userID), raw)
	}))
}

func (r RoomRepository) GetMembership(roomID uuid.UUID, userID string) (domain.Membership, error) {
	var membership domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(roomID, userID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("membership %s in room %s", userID, roomID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &membership)
		})
	})
	return membership, err
}

func (r RoomRepository) ListMembers(roomID uuid.UUID) ([]domain.Membership, error) {
	var members []domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := memberPrefix(roomID)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var membership domain.Membership
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &membership)
			})
			if err != nil {
				return err
			}
			members = append(members, membership)
		}
		return nil
	})
	return members, err
}

func (r RoomRepository) IsMember(roomID uuid.UUID, userID string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(roomID, userID))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NewMembership stamps a join-record at now. Kept here so every insert
// path (create, add, invite) produces the same shape.
func NewMembership(roomID uuid.UUID, userID string, isAdmin bool) domain.Membership {
	return domain.Membership{
		RoomID:   roomID,
		UserID:   userID,
		IsAdmin:  isAdmin,
		JoinedAt: time.Now().UTC(),
	}
}

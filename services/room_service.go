package services

import (
	"context"
	"fmt"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

type IRoomService interface {
	CreateRoom(ctx context.Context, cmd CreateRoomCommand) (domain.Room, error)
	GetRoom(ctx context.Context, actorID string, roomID uuid.UUID) (domain.Room, error)
	UpdateRoom(ctx context.Context, actorID string, roomID uuid.UUID, patch RoomPatch) (domain.Room, error)
	DeleteRoom(ctx context.Context, actor Actor, roomID uuid.UUID) error
	AddMembers(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string, asAdmin bool) (MemberChange, error)
	RemoveMembers(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string) (MemberChange, error)
	Leave(ctx context.Context, userID string, roomID uuid.UUID) error
	SetMemberAdmin(ctx context.Context, actorID string, roomID uuid.UUID, userID string, isAdmin bool) error
	ListRooms(ctx context.Context, userID string, filter RoomFilter) ([]domain.Room, error)
	ListMembers(ctx context.Context, roomID uuid.UUID) ([]domain.Membership, error)
}

// Actor is a verified identity plus its provider-issued roles. The
// superuser role widens deleteRoom only; everything else is
// relationship-based.
type Actor struct {
	UserID string
	Roles  []string
}

const superuserRole = "admin"

func (a Actor) Superuser() bool {
	return lo.Contains(a.Roles, superuserRole)
}

type CreateRoomCommand struct {
	CreatorID   string `validate:"required"`
	Name        string `validate:"required"`
	Description string
	Kind        domain.RoomKind
	IsPrivate   bool
	MemberIDs   []string
}

// RoomPatch carries partial update semantics: only non-nil fields change.
type RoomPatch struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

type RoomFilter struct {
	MemberOnly bool
	Kind       domain.RoomKind
}

// MemberChange reports a membership mutation: the full member set after
// the change plus the memberships actually touched by it.
type MemberChange struct {
	Members []domain.Membership
	Changed []domain.Membership
}

type RoomService struct {
	rooms     repositories.IRoomRepository
	publisher contract.Publisher
	log       *slog.Logger
}

func NewRoomService(rooms repositories.IRoomRepository, publisher contract.Publisher, log *slog.Logger) *RoomService {
	return &RoomService{rooms: rooms, publisher: publisher, log: log}
}

// CreateRoom creates the room with the creator attached as admin member
// and the initial member ids (deduplicated, creator excluded) as plain
// members. Direct rooms are forced private and must resolve to exactly
// two members.
func (s *RoomService) CreateRoom(ctx context.Context, cmd CreateRoomCommand) (domain.Room, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Room{}, errors.Validationf("create room: %v", err)
	}
	if cmd.Kind == "" {
		cmd.Kind = domain.RoomPublic
	}
	if !cmd.Kind.Valid() {
		return domain.Room{}, errors.Validationf("unknown room kind %q", cmd.Kind)
	}

	memberIDs := lo.Uniq(lo.Without(cmd.MemberIDs, cmd.CreatorID))
	isPrivate := cmd.IsPrivate
	if cmd.Kind == domain.RoomDirect {
		if len(memberIDs) != 1 {
			return domain.Room{}, errors.Validationf("direct room needs exactly one other member, got %d", len(memberIDs))
		}
		isPrivate = true
	}

	room := domain.Room{
		ID:          uuid.New(),
		Name:        cmd.Name,
		Description: cmd.Description,
		Kind:        cmd.Kind,
		CreatedBy:   cmd.CreatorID,
		IsPrivate:   isPrivate,
		CreatedAt:   nowUTC(),
	}

	members := append(
		[]domain.Membership{repositories.NewMembership(room.ID, cmd.CreatorID, true)},
		lo.Map(memberIDs, func(userID string, _ int) domain.Membership {
			return repositories.NewMembership(room.ID, userID, false)
		})...,
	)

	if err := s.rooms.CreateRoom(room, members); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room created", "room_id", room.ID, "kind", room.Kind, "creator", cmd.CreatorID)
	return room, nil
}

// GetRoom fetches one room. A soft-deleted room stays retrievable by its
// creator for audit; everyone else reads it as absent, the same as every
// mutation path.
func (s *RoomService) GetRoom(ctx context.Context, actorID string, roomID uuid.UUID) (domain.Room, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Deleted() {
		if room.CreatedBy == actorID {
			return room, nil
		}
		return domain.Room{}, errors.NotFoundf("room %s", roomID)
	}
	if room.IsPrivate {
		isMember, err := s.rooms.IsMember(roomID, actorID)
		if err != nil {
			return domain.Room{}, err
		}
		if !room.VisibleTo(actorID, isMember) {
			return domain.Room{}, errors.NotFoundf("room %s", roomID)
		}
	}
	return room, nil
}

func (s *RoomService) UpdateRoom(ctx context.Context, actorID string, roomID uuid.UUID, patch RoomPatch) (domain.Room, error) {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if err = s.requireManager(room, actorID); err != nil {
		return domain.Room{}, err
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			return domain.Room{}, errors.Validationf("room name cannot be empty")
		}
		room.Name = *patch.Name
	}
	if patch.Description != nil {
		room.Description = *patch.Description
	}
	if patch.IsPrivate != nil {
		if room.Kind == domain.RoomDirect && !*patch.IsPrivate {
			return domain.Room{}, fmt.Errorf("%w: direct rooms stay private", errors.ErrOperationNotAllowed)
		}
		room.IsPrivate = *patch.IsPrivate
	}
	if err = s.rooms.UpdateRoom(room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// DeleteRoom soft-deletes: the record stays readable for audit but drops
// out of every listing and join path.
func (s *RoomService) DeleteRoom(ctx context.Context, actor Actor, roomID uuid.UUID) error {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != actor.UserID && !actor.Superuser() {
		return fmt.Errorf("%w: only the creator may delete room %s", errors.ErrForbidden, roomID)
	}
	now := nowUTC()
	room.DeletedAt = &now
	if err = s.rooms.UpdateRoom(room); err != nil {
		return err
	}
	s.log.Info("room deleted", "room_id", roomID, "actor", actor.UserID)
	return nil
}

func (s *RoomService) AddMembers(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string, asAdmin bool) (MemberChange, error) {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return MemberChange{}, err
	}
	if err = s.requireManager(room, actorID); err != nil {
		return MemberChange{}, err
	}
	if room.Kind == domain.RoomDirect {
		return MemberChange{}, fmt.Errorf("%w: direct room membership is fixed", errors.ErrOperationNotAllowed)
	}

	candidates := lo.Map(lo.Uniq(userIDs), func(userID string, _ int) domain.Membership {
		return repositories.NewMembership(roomID, userID, asAdmin)
	})
	added, err := s.rooms.AddMembers(roomID, candidates)
	if err != nil {
		return MemberChange{}, err
	}
	members, err := s.rooms.ListMembers(roomID)
	if err != nil {
		return MemberChange{}, err
	}
	if len(added) > 0 {
		s.publisher.Publish(ctx, event.MembershipChanged{
			RoomID:  roomID,
			ActorID: actorID,
			Added:   added,
		})
	}
	return MemberChange{Members: members, Changed: added}, nil
}

func (s *RoomService) RemoveMembers(ctx context.Context, actorID string, roomID uuid.UUID, userIDs []string) (MemberChange, error) {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return MemberChange{}, err
	}
	if err = s.requireManager(room, actorID); err != nil {
		return MemberChange{}, err
	}
	if room.Kind == domain.RoomDirect {
		return MemberChange{}, fmt.Errorf("%w: direct room membership is fixed", errors.ErrOperationNotAllowed)
	}
	if lo.Contains(userIDs, room.CreatedBy) {
		return MemberChange{}, fmt.Errorf("%w: the creator cannot be removed", errors.ErrOperationNotAllowed)
	}

	removed, err := s.rooms.RemoveMembers(roomID, lo.Uniq(userIDs))
	if err != nil {
		return MemberChange{}, err
	}
	members, err := s.rooms.ListMembers(roomID)
	if err != nil {
		return MemberChange{}, err
	}
	if len(removed) > 0 {
		s.publisher.Publish(ctx, event.MembershipChanged{
			RoomID:  roomID,
			ActorID: actorID,
			Removed: removed,
		})
	}
	return MemberChange{Members: members}, nil
}

// Leave removes the caller's own membership. The creator can never
// leave, and a direct room cannot be left at all: its member pair is
// fixed for life (delete the room instead). A non-member gets NotFound.
func (s *RoomService) Leave(ctx context.Context, userID string, roomID uuid.UUID) error {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	if room.Kind == domain.RoomDirect {
		return fmt.Errorf("%w: direct room membership is fixed", errors.ErrOperationNotAllowed)
	}
	if room.CreatedBy == userID {
		return fmt.Errorf("%w: the creator cannot leave", errors.ErrOperationNotAllowed)
	}
	removed, err := s.rooms.RemoveMembers(roomID, []string{userID})
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return errors.NotFoundf("membership %s in room %s", userID, roomID)
	}
	s.publisher.Publish(ctx, event.MembershipChanged{
		RoomID:  roomID,
		ActorID: userID,
		Removed: removed,
	})
	return nil
}

// SetMemberAdmin toggles admin on a membership. Admin status is explicit:
// nobody is promoted automatically, and the creator's standing is not a
// flag that can be edited.
func (s *RoomService) SetMemberAdmin(ctx context.Context, actorID string, roomID uuid.UUID, userID string, isAdmin bool) error {
	room, err := s.activeRoom(roomID)
	if err != nil {
		return err
	}
	if err = s.requireManager(room, actorID); err != nil {
		return err
	}
	if userID == room.CreatedBy {
		return fmt.Errorf("%w: the creator's standing is fixed", errors.ErrOperationNotAllowed)
	}
	return s.rooms.SetMemberAdmin(roomID, userID, isAdmin)
}

func (s *RoomService) ListRooms(ctx context.Context, userID string, filter RoomFilter) ([]domain.Room, error) {
	rooms, err := s.rooms.ListVisibleRooms(userID)
	if err != nil {
		return nil, err
	}
	if filter.Kind != "" {
		rooms = lo.Filter(rooms, func(room domain.Room, _ int) bool {
			return room.Kind == filter.Kind
		})
	}
	if filter.MemberOnly {
		filtered := rooms[:0]
		for _, room := range rooms {
			isMember, err := s.rooms.IsMember(room.ID, userID)
			if err != nil {
				return nil, err
			}
			if isMember {
				filtered = append(filtered, room)
			}
		}
		rooms = filtered
	}
	return rooms, nil
}

func (s *RoomService) ListMembers(ctx context.Context, roomID uuid.UUID) ([]domain.Membership, error) {
	if _, err := s.activeRoom(roomID); err != nil {
		return nil, err
	}
	return s.rooms.ListMembers(roomID)
}

// activeRoom resolves a room that is still mutable: a soft-deleted room
// reads as absent to every operation.
func (s *RoomService) activeRoom(roomID uuid.UUID) (domain.Room, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Deleted() {
		return domain.Room{}, errors.NotFoundf("room %s", roomID)
	}
	return room, nil
}

// requireManager passes for the creator or any admin member.
func (s *RoomService) requireManager(room domain.Room, actorID string) error {
	if room.CreatedBy == actorID {
		return nil
	}
	membership, err := s.rooms.GetMembership(room.ID, actorID)
	if err != nil {
		return fmt.Errorf("%w: %s does not manage room %s", errors.ErrForbidden, actorID, room.ID)
	}
	if !membership.IsAdmin {
		return fmt.Errorf("%w: %s does not manage room %s", errors.ErrForbidden, actorID, room.ID)
	}
	return nil
}

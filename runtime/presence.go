package runtime

import (
	"sort"
	"sync"

	"chat-core/domain"

	"github.com/google/uuid"
)

// PresenceTracker maintains the live set of connected identities per room
// presence channel. Entries are keyed by connection id (a user may be on
// several devices at once) but exposed to clients deduplicated by user: a
// user is present while at least one connection is live.
//
// Join and Leave are deliberately error-free. Duplicate joins and
// untracked leaves are no-ops, since network retries can plausibly
// produce either.
type PresenceTracker struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]domain.PresenceEntry // room -> connection -> entry
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[uuid.UUID]map[string]domain.PresenceEntry)}
}

// Join registers a connection on the room and returns the snapshot of the
// users already present, the joiner excluded ("here" semantics: the
// joiner sees who is around without receiving its own join twice). first
// reports whether this is the user's first live connection to the room;
// the join delta is broadcast only then.
func (t *PresenceTracker) Join(entry domain.PresenceEntry) (snapshot []domain.User, first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.rooms[entry.RoomID]
	if !ok {
		entries = make(map[string]domain.PresenceEntry)
		t.rooms[entry.RoomID] = entries
	}

	first = true
	for _, existing := range entries {
		if existing.UserID == entry.UserID {
			first = false
			break
		}
	}
	entries[entry.ConnectionID] = entry

	return dedupeByUser(entries, entry.UserID), first
}

// Leave removes a connection. last reports whether the user has no other
// live connection on the room; the leave delta is broadcast only then.
// Leaving a room or connection that was never tracked is a no-op.
func (t *PresenceTracker) Leave(roomID uuid.UUID, connectionID string) (user domain.User, last bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.rooms[roomID]
	if !ok {
		return domain.User{}, false
	}
	entry, ok := entries[connectionID]
	if !ok {
		return domain.User{}, false
	}
	delete(entries, connectionID)

	// No empty sets are left behind, so the map cannot grow with dead rooms.
	if len(entries) == 0 {
		delete(t.rooms, roomID)
	}

	for _, remaining := range entries {
		if remaining.UserID == entry.UserID {
			return domain.User{ID: entry.UserID, DisplayName: entry.DisplayName}, false
		}
	}
	return domain.User{ID: entry.UserID, DisplayName: entry.DisplayName}, true
}

// Snapshot returns the deduplicated present users of a room. The copy is
// taken under the read lock; callers broadcast from the copy so no lock is
// ever held across sink I/O.
func (t *PresenceTracker) Snapshot(roomID uuid.UUID) []domain.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return dedupeByUser(t.rooms[roomID], "")
}

// Connections lists a user's live connection ids on a room, for forced
// eviction after a membership removal.
func (t *PresenceTracker) Connections(roomID uuid.UUID, userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for connectionID, entry := range t.rooms[roomID] {
		if entry.UserID == userID {
			ids = append(ids, connectionID)
		}
	}
	return ids
}

func dedupeByUser(entries map[string]domain.PresenceEntry, excludeUserID string) []domain.User {
	seen := make(map[string]struct{}, len(entries))
	var users []domain.User
	for _, entry := range entries {
		if entry.UserID == excludeUserID {
			continue
		}
		if _, ok := seen[entry.UserID]; ok {
			continue
		}
		seen[entry.UserID] = struct{}{}
		users = append(users, domain.User{ID: entry.UserID, DisplayName: entry.DisplayName})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

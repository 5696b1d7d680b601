package auth

import (
	"context"
	"sync"

	"chat-core/domain"
	"chat-core/errors"
)

// SessionDirectory is the in-process stand-in for the identity provider's
// user lookup. Every verified connection records its identity here, so
// ids become resolvable the moment the user has authenticated once.
// A deployment fronted by a real directory service would replace this with
// a client for it; the contract is the same.
type SessionDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{users: make(map[string]domain.User)}
}

func (d *SessionDirectory) Record(user domain.User) {
	if user.ID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *SessionDirectory) Lookup(_ context.Context, userID string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return domain.User{}, errors.NotFoundf("user %s", userID)
	}
	return user, nil
}

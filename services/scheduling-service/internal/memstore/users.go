package memstore

import (
	"context"
	"sync"

	"github.com/slotline/slotline/services/scheduling-service/internal/booking"
	"github.com/slotline/slotline/services/scheduling-service/internal/storage"
)

// Users is an in-memory account store keyed by email.
type Users struct {
	mu      sync.Mutex
	byEmail map[string]storage.User
}

func NewUsers() *Users {
	return &Users{byEmail: make(map[string]storage.User)}
}

func (u *Users) Create(_ context.Context, user storage.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byEmail[user.Email]; ok {
		return storage.ErrEmailTaken
	}
	u.byEmail[user.Email] = user
	return nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (storage.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byEmail[email]
	if !ok {
		return storage.User{}, booking.Errorf(booking.KindNotFound, "no user for %s", email)
	}
	return user, nil
}

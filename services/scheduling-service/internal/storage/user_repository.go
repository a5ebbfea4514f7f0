package storage

import (
	"context"
	"time"

	"github.com/slotline/slotline/libs/db"
)

// User is an account row. Providers carry a non-empty ProviderID equal to
// their own user id; customers leave it empty.
type User struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Role         string // "provider" or "customer"
	ProviderID   string
	CreatedAt    time.Time
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, phone, password_hash, role, provider_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, '')::uuid)
	`, user.ID, user.Email, user.Name, user.Phone, user.PasswordHash, user.Role, user.ProviderID)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return ErrEmailTaken
		}
		return mapError(err, "create user")
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	var phone, providerID *string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, name, phone, password_hash, role, provider_id::text, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &phone, &user.PasswordHash, &user.Role, &providerID, &user.CreatedAt)
	if err != nil {
		return User{}, mapError(err, "user by email")
	}
	if phone != nil {
		user.Phone = *phone
	}
	if providerID != nil {
		user.ProviderID = *providerID
	}
	return user, nil
}

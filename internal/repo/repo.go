package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/mind-auth/internal/models"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrNotConfigured = errors.New("user store not configured")
)

// UserStore is the persistence the auth service needs. Lookups by email
// expect an already normalized address.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Ping(ctx context.Context) error
}

// Unconfigured stands in for a store when no database was configured. Every
// call fails with ErrNotConfigured.
type Unconfigured struct {
	Reason string
}

func (u Unconfigured) err() error {
	if u.Reason == "" {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: %s", ErrNotConfigured, u.Reason)
}

func (u Unconfigured) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, u.err()
}

func (u Unconfigured) FindByID(context.Context, string) (*models.User, error) {
	return nil, u.err()
}

func (u Unconfigured) Create(context.Context, *models.User) error { return u.err() }

func (u Unconfigured) Ping(context.Context) error { return u.err() }

// Configured reports whether s is backed by a real database.
func Configured(s UserStore) bool {
	switch s.(type) {
	case nil, Unconfigured, *Unconfigured:
		return false
	}
	return true
}

package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Skotchmaster/mind-auth/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return &GormRepo{DB: db}
}

func newUser(email string) *models.User {
	return &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Jane Doe",
		Role:         "researcher",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestGormRepo_CreateAndFind(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u := newUser("jane@example.org")
	require.NoError(t, r.Create(ctx, u))

	byEmail, err := r.FindByEmail(ctx, "jane@example.org")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "Jane Doe", byEmail.FullName)
	assert.True(t, u.CreatedAt.Equal(byEmail.CreatedAt))

	byID, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.org", byID.Email)
}

func TestGormRepo_NotFound(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.FindByEmail(ctx, "ghost@example.org")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormRepo_EmailIsUnique(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newUser("jane@example.org")))
	err := r.Create(ctx, newUser("jane@example.org"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestGormRepo_Ping(t *testing.T) {
	r := newTestRepo(t)
	assert.NoError(t, r.Ping(context.Background()))
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	u := Unconfigured{Reason: "DATABASE_URL is empty"}
	ctx := context.Background()

	_, err := u.FindByEmail(ctx, "a@b.c")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "DATABASE_URL is empty")

	_, err = u.FindByID(ctx, "id")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, u.Create(ctx, &models.User{}), ErrNotConfigured)
	assert.ErrorIs(t, Unconfigured{}.Ping(ctx), ErrNotConfigured)
}

func TestConfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, Configured(nil))
	assert.False(t, Configured(Unconfigured{}))
	assert.False(t, Configured(&Unconfigured{}))
	assert.True(t, Configured(&GormRepo{}))
}

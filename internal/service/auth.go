package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/mind-auth/internal/events"
	"github.com/Skotchmaster/mind-auth/internal/hash"
	"github.com/Skotchmaster/mind-auth/internal/logging"
	"github.com/Skotchmaster/mind-auth/internal/models"
	"github.com/Skotchmaster/mind-auth/internal/repo"
	"github.com/Skotchmaster/mind-auth/internal/tokens"
	"github.com/Skotchmaster/mind-auth/internal/validate"
	"github.com/google/uuid"
)

const (
	DefaultRole    = validate.RoleResearcher
	publishTimeout = 5 * time.Second
)

type AuthService struct {
	Users  repo.UserStore
	Tokens *tokens.Codec
	Events events.Publisher
	Now    func() time.Time

	// Hash defaults to hash.HashPassword.
	Hash func(password string) (string, error)
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     string
}

// Session is a user together with a freshly signed session token.
type Session struct {
	User  *models.User
	Token string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) hash(password string) (string, error) {
	if s.Hash != nil {
		return s.Hash(password)
	}
	return hash.HashPassword(password)
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if in.Role == "" {
		in.Role = DefaultRole
	}
	if err := validateRegistration(in); err != nil {
		l.Info("register_rejected", "field", err.Field, "reason", err.Message)
		return nil, err
	}

	email := validate.NormalizeEmail(in.Email)

	_, err := s.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		l.Warn("register_rejected", "reason", "email already registered")
		return nil, ErrConflict
	case !errors.Is(err, repo.ErrNotFound):
		l.Error("register_error", "status", 500, "reason", "lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	pwHash, err := s.hash(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: pwHash,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.Users.Create(ctx, user); err != nil {
		l.Error("register_error", "status", 500, "reason", "insert failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	token, err := s.Tokens.Sign(user.ID, user.Email, user.Role)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, fmt.Errorf("sign token: %w", err)
	}

	l.Info("register_successful", "user_id", user.ID, "role", user.Role)
	s.publish(ctx, events.TypeUserRegistered, user)

	return &Session{User: user, Token: token}, nil
}

func validateRegistration(in RegisterInput) *ValidationError {
	checks := []struct {
		field string
		res   validate.Result
	}{
		{"email", validate.Email(in.Email)},
		{"password", validate.Password(in.Password)},
		{"full_name", validate.FullName(in.FullName)},
		{"role", validate.Role(in.Role)},
	}
	for _, c := range checks {
		if !c.res.Valid {
			return &ValidationError{Field: c.field, Message: c.res.Error}
		}
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = validate.NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		// A blank email after trimming still pays for a hash.
		if password != "" {
			_, _ = s.hash(password)
		}
		l.Warn("login_failed", "status", 401, "reason", "missing email or password")
		return nil, ErrInvalidCredentials
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Spend the same hashing work as a real check.
			_, _ = s.hash(password)
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}

	token, err := s.Tokens.Sign(user.ID, user.Email, user.Role)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign token", "error", err)
		return nil, fmt.Errorf("sign token: %w", err)
	}

	l.Info("login_successful", "user_id", user.ID)
	s.publish(ctx, events.TypeUserLoggedIn, user)

	return &Session{User: user, Token: token}, nil
}

// CurrentUser resolves a session token to the stored user it was issued for.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.me")

	claims, err := s.Tokens.Verify(token)
	if err != nil {
		l.Info("session_rejected", "error", err)
		return nil, ErrInvalidSession
	}

	user, err := s.Users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("session_rejected", "reason", "user no longer exists", "user_id", claims.Subject)
			return nil, ErrUserNotFound
		}
		l.Error("session_lookup_failed", "user_id", claims.Subject, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return user, nil
}

func (s *AuthService) publish(ctx context.Context, typ string, u *models.User) {
	if s.Events == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ev := events.Event{
		Type:       typ,
		UserID:     u.ID,
		Email:      u.Email,
		Role:       u.Role,
		OccurredAt: s.now().UTC(),
	}
	if err := s.Events.Publish(pubCtx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "user_id", u.ID, "error", err)
	}
}

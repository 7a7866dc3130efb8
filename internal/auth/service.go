package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/projtrack/projtrack/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate resolves the login name to a user and checks the password.
// The login name is tried as a username first and then as a display name;
// a display name shared by several users never authenticates.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, login)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		user, err = s.findByName(ctx, login)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) findByName(ctx context.Context, name string) (*User, error) {
	users, err := s.repo.FindByName(ctx, norm.NFC.String(name))
	if err != nil {
		return nil, err
	}
	if len(users) != 1 {
		return nil, shared.ErrInvalidCredentials
	}
	return &users[0], nil
}

// Profile loads the user behind a session.
func (s *Service) Profile(ctx context.Context, userID int64) (*User, error) {
	if userID <= 0 {
		return nil, shared.ErrNotFound
	}
	return s.repo.FindByID(ctx, userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// SweepExpired deletes session rows past their expiry and reports how many went.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return n, nil
}

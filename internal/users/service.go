package users

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/rbac"
	"github.com/projtrack/projtrack/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter Filter) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	UpdateUser(ctx context.Context, id int64, ch Changes) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	authz      *rbac.Service
	logger     *slog.Logger
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz *rbac.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, logger: logger, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost, mostly for tests.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// ListUsers returns the users matching filter.
func (s *Service) ListUsers(ctx context.Context, ident *access.Identity, filter Filter) ([]User, error) {
	if !s.authz.Allow(ident, access.PermViewUsers) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListUsers(ctx, filter)
}

// GetUser returns one user. Callers without view_users may only read themselves.
func (s *Service) GetUser(ctx context.Context, ident *access.Identity, id int64) (*User, error) {
	if ident == nil {
		return nil, shared.ErrForbidden
	}
	if ident.ID != id && !s.authz.Allow(ident, access.PermViewUsers) {
		return nil, shared.ErrForbidden
	}
	return s.repo.GetUser(ctx, id)
}

// CreateUser adds a user. Without an explicit username one is derived from
// the name; without a password a random one is generated and returned.
func (s *Service) CreateUser(ctx context.Context, ident *access.Identity, in CreateInput) (*Created, error) {
	if !s.authz.Allow(ident, access.PermManageUsers) {
		return nil, shared.ErrForbidden
	}
	nu := NewUser{
		Name:     norm.NFC.String(strings.TrimSpace(in.Name)),
		Email:    strings.TrimSpace(in.Email),
		Position: strings.TrimSpace(in.Position),
		Role:     access.RoleMember,
	}
	if nu.Name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	if in.Role != "" {
		role, ok := access.ParseGlobalRole(in.Role)
		if !ok {
			return nil, fmt.Errorf("%w: role must be manager or member", shared.ErrInvalidInput)
		}
		nu.Role = role
	}

	if in.Username != "" {
		nu.Username = strings.ToLower(in.Username)
	} else {
		base := BaseUsername(nu.Name)
		existing, err := s.repo.UsernamesWithPrefix(ctx, base)
		if err != nil {
			return nil, err
		}
		taken := make(map[string]struct{}, len(existing))
		for _, name := range existing {
			taken[name] = struct{}{}
		}
		nu.Username = nextFreeUsername(base, taken)
	}

	password := in.Password
	generated := password == ""
	if generated {
		password = rand.Text()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	nu.PasswordHash = string(hash)

	user, err := s.repo.CreateUser(ctx, nu)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("username", user.Username), slog.Int64("by", ident.ID))
	out := &Created{User: *user}
	if generated {
		out.InitialPassword = password
	}
	return out, nil
}

// UpdateUser changes a user's profile fields and role. Callers cannot change
// their own role.
func (s *Service) UpdateUser(ctx context.Context, ident *access.Identity, id int64, in UpdateInput) (*User, error) {
	if !s.authz.Allow(ident, access.PermManageUsers) {
		return nil, shared.ErrForbidden
	}
	var ch Changes
	if in.Name != nil {
		name := norm.NFC.String(strings.TrimSpace(*in.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
		}
		ch.Name = &name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		ch.Email = &email
	}
	if in.Position != nil {
		position := strings.TrimSpace(*in.Position)
		ch.Position = &position
	}
	if in.Role != nil {
		role, ok := access.ParseGlobalRole(*in.Role)
		if !ok {
			return nil, fmt.Errorf("%w: role must be manager or member", shared.ErrInvalidInput)
		}
		if ident.ID == id && role != ident.Role {
			return nil, fmt.Errorf("%w: cannot change your own role", shared.ErrInvalidInput)
		}
		ch.Role = &role
	}

	user, err := s.repo.UpdateUser(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated", slog.Int64("user_id", id), slog.Int64("by", ident.ID))
	return user, nil
}

// DeleteUser removes a user. Callers cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, ident *access.Identity, id int64) error {
	if !s.authz.Allow(ident, access.PermManageUsers) {
		return shared.ErrForbidden
	}
	if ident.ID == id {
		return fmt.Errorf("%w: cannot delete your own account", shared.ErrInvalidInput)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("by", ident.ID))
	return nil
}

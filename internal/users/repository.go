package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, username, COALESCE(email, ''), COALESCE(position, ''), role, created_at, updated_at`

// ListUsers returns the users matching filter, ordered by name.
func (r *Repository) ListUsers(ctx context.Context, filter Filter) ([]User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	var args []any
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		sql += fmt.Sprintf(` AND role = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		sql += fmt.Sprintf(` AND (name ILIKE $%[1]d OR username ILIKE $%[1]d)`, len(args))
	}
	sql += ` ORDER BY name, id`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	return users, nil
}

// GetUser fetches one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return &user, nil
}

// UsernamesWithPrefix returns the existing usernames starting with prefix.
func (r *Repository) UsernamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT username FROM users WHERE username LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("users: usernames: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("users: usernames: %w", err)
	}
	return names, nil
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	now := time.Now().UTC()
	user, err := scanUser(r.pool.QueryRow(ctx, `INSERT INTO users (name, username, email, position, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $7)
		RETURNING `+userColumns,
		in.Name, in.Username, in.Email, in.Position, string(in.Role), in.PasswordHash, now))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: username %q is taken", shared.ErrConflict, in.Username)
		}
		return nil, fmt.Errorf("users: create: %w", err)
	}
	return &user, nil
}

// UpdateUser applies the non-nil changes. An email already used by another
// user is a conflict.
func (r *Repository) UpdateUser(ctx context.Context, id int64, ch Changes) (*User, error) {
	if ch.Email != nil && *ch.Email != "" {
		var taken bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`,
			*ch.Email, id).Scan(&taken); err != nil {
			return nil, fmt.Errorf("users: check email: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("%w: email is used by another user", shared.ErrConflict)
		}
	}
	var role *string
	if ch.Role != nil {
		s := string(*ch.Role)
		role = &s
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `UPDATE users SET
			name = COALESCE($2, name),
			email = CASE WHEN $3::text IS NULL THEN email ELSE NULLIF($3, '') END,
			position = CASE WHEN $4::text IS NULL THEN position ELSE NULLIF($4, '') END,
			role = COALESCE($5, role),
			updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns,
		id, ch.Name, ch.Email, ch.Position, role, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: update: %w", err)
	}
	return &user, nil
}

// DeleteUser removes a user. Memberships go with it and assignments are cleared.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Position, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	if parsed, ok := access.ParseGlobalRole(role); ok {
		u.Role = parsed
	} else {
		u.Role = access.GlobalRole(role)
	}
	return u, nil
}

var _ RepositoryPort = (*Repository)(nil)

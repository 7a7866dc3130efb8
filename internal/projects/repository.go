package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/platform/db"
	"github.com/projtrack/projtrack/internal/shared"
)

// Repository defines persistence for projects and their members.
type Repository interface {
	List(ctx context.Context) ([]Project, error)
	ListForUser(ctx context.Context, userID int64) ([]Project, error)
	Get(ctx context.Context, id int64) (*Project, error)
	Create(ctx context.Context, in NewProject) (*Project, error)
	Update(ctx context.Context, id int64, ch Changes) error
	Delete(ctx context.Context, id int64) error
	AddMember(ctx context.Context, projectID, userID int64, role access.ProjectRole) error
	RemoveMember(ctx context.Context, projectID, userID int64) error
	SetMemberRole(ctx context.Context, projectID, userID int64, role access.ProjectRole) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const projectColumns = `p.id, p.name, COALESCE(p.description, ''), p.status, p.progress, p.start_date, p.end_date, p.created_at, p.updated_at`

// List returns every project, most recently updated first.
func (r *PGRepository) List(ctx context.Context) ([]Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects p ORDER BY p.updated_at DESC, p.id DESC`)
}

// ListForUser returns the projects userID is a member of.
func (r *PGRepository) ListForUser(ctx context.Context, userID int64) ([]Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.updated_at DESC, p.id DESC`, userID)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]Project, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("projects: list: %w", err)
	}
	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Project, error) {
		p, err := scanProject(row)
		if err != nil {
			return Project{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("projects: scan: %w", err)
	}
	if len(projects) == 0 {
		return projects, nil
	}

	ids := make([]int64, len(projects))
	index := make(map[int64]int, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
		index[projects[i].ID] = i
		projects[i].Members = []Member{}
	}
	members, err := r.members(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for projectID, list := range members {
		projects[index[projectID]].Members = list
	}
	return projects, nil
}

// Get loads one project with its members.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Project, error) {
	project, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("projects: get: %w", err)
	}
	members, err := r.members(ctx, r.pool, []int64{id})
	if err != nil {
		return nil, err
	}
	project.Members = members[id]
	if project.Members == nil {
		project.Members = []Member{}
	}
	return project, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PGRepository) members(ctx context.Context, q querier, projectIDs []int64) (map[int64][]Member, error) {
	rows, err := q.Query(ctx, `SELECT pm.project_id, pm.user_id, pm.role, u.name, COALESCE(u.position, '')
		FROM project_members pm JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = ANY($1)
		ORDER BY pm.project_id, pm.role, u.name`, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("projects: members: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]Member)
	for rows.Next() {
		var (
			projectID int64
			m         Member
			role      string
		)
		if err := rows.Scan(&projectID, &m.UserID, &role, &m.Name, &m.Position); err != nil {
			return nil, fmt.Errorf("projects: scan member: %w", err)
		}
		parsed, ok := access.ParseProjectRole(role)
		if !ok {
			continue
		}
		m.Role = parsed
		out[projectID] = append(out[projectID], m)
	}
	return out, rows.Err()
}

// Create inserts the project and its initial members in one transaction.
func (r *PGRepository) Create(ctx context.Context, in NewProject) (*Project, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if err := tx.QueryRow(ctx, `INSERT INTO projects (name, description, status, progress, start_date, end_date, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), $3, 0, $4, $5, $6, $6) RETURNING id`,
			in.Name, in.Description, string(in.Status), in.StartDate, in.EndDate, now).Scan(&id); err != nil {
			return fmt.Errorf("projects: insert: %w", err)
		}
		for _, m := range in.Members {
			if _, err := tx.Exec(ctx, `INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
				id, m.UserID, string(m.Role), now); err != nil {
				return memberError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Update applies the non-nil changes. The clear flags null out a date.
func (r *PGRepository) Update(ctx context.Context, id int64, ch Changes) error {
	var status *string
	if ch.Status != nil {
		s := string(*ch.Status)
		status = &s
	}
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			start_date = CASE WHEN $8 THEN NULL ELSE COALESCE($5, start_date) END,
			end_date = CASE WHEN $9 THEN NULL ELSE COALESCE($6, end_date) END,
			updated_at = $7
		WHERE id = $1`,
		id, ch.Name, ch.Description, status, ch.StartDate, ch.EndDate, time.Now().UTC(), ch.ClearStartDate, ch.ClearEndDate)
	if err != nil {
		return fmt.Errorf("projects: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the project. Members and modules cascade.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("projects: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddMember inserts a membership row. A second row for the same user is a conflict.
func (r *PGRepository) AddMember(ctx context.Context, projectID, userID int64, role access.ProjectRole) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO project_members (project_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		projectID, userID, string(role), time.Now().UTC())
	if err != nil {
		return memberError(err)
	}
	return nil
}

// RemoveMember deletes a membership row and unassigns the user from the
// project's modules, since assignees must be members.
func (r *PGRepository) RemoveMember(ctx context.Context, projectID, userID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
		if err != nil {
			return fmt.Errorf("projects: remove member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE project_modules SET assigned_to_id = NULL, updated_at = $3
			WHERE project_id = $1 AND assigned_to_id = $2`, projectID, userID, time.Now().UTC()); err != nil {
			return fmt.Errorf("projects: unassign modules: %w", err)
		}
		return nil
	})
}

// SetMemberRole changes the role of an existing member.
func (r *PGRepository) SetMemberRole(ctx context.Context, projectID, userID int64, role access.ProjectRole) error {
	tag, err := r.pool.Exec(ctx, `UPDATE project_members SET role = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, string(role))
	if err != nil {
		return fmt.Errorf("projects: set member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func memberError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: user is already a member of this project", shared.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%w: unknown user", shared.ErrInvalidInput)
		}
	}
	return fmt.Errorf("projects: add member: %w", err)
}

func scanProject(row pgx.Row) (*Project, error) {
	var (
		p      Project
		status string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &status, &p.Progress, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

var _ Repository = (*PGRepository)(nil)

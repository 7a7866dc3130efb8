package modules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projtrack/projtrack/internal/platform/db"
	"github.com/projtrack/projtrack/internal/projects"
	"github.com/projtrack/projtrack/internal/shared"
)

// Repository defines persistence for modules.
type Repository interface {
	ListByProject(ctx context.Context, projectID int64) ([]Module, error)
	ListByAssignee(ctx context.Context, userID int64) ([]Module, error)
	Get(ctx context.Context, id int64) (*Module, error)
	Create(ctx context.Context, in NewModule) (*Module, error)
	UpdateProgress(ctx context.Context, up ProgressUpdate) (*Module, error)
	SetAssignee(ctx context.Context, id int64, userID *int64) (*Module, error)
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository on PostgreSQL. Every write that changes
// module progress recomputes the owning project's progress in the same
// transaction.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const moduleColumns = `m.id, m.project_id, m.name, COALESCE(m.description, ''), m.status, m.progress,
	m.assigned_to_id, COALESCE(u.name, ''), m.start_date, m.end_date, m.created_at, m.updated_at`

const moduleFrom = ` FROM project_modules m LEFT JOIN users u ON u.id = m.assigned_to_id`

// ListByProject returns the modules of a project in creation order.
func (r *PGRepository) ListByProject(ctx context.Context, projectID int64) ([]Module, error) {
	return r.list(ctx, `SELECT `+moduleColumns+moduleFrom+` WHERE m.project_id = $1 ORDER BY m.id`, projectID)
}

// ListByAssignee returns the modules assigned to a user across projects.
func (r *PGRepository) ListByAssignee(ctx context.Context, userID int64) ([]Module, error) {
	return r.list(ctx, `SELECT `+moduleColumns+moduleFrom+` WHERE m.assigned_to_id = $1 ORDER BY m.project_id, m.id`, userID)
}

func (r *PGRepository) list(ctx context.Context, sql string, args ...any) ([]Module, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("modules: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Module, error) {
		m, err := scanModule(row)
		if err != nil {
			return Module{}, err
		}
		return *m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("modules: scan: %w", err)
	}
	return list, nil
}

// Get loads one module.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Module, error) {
	return getModule(ctx, r.pool, id)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getModule(ctx context.Context, q queryRower, id int64) (*Module, error) {
	m, err := scanModule(q.QueryRow(ctx, `SELECT `+moduleColumns+moduleFrom+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("modules: get: %w", err)
	}
	return m, nil
}

// Create inserts a module and refreshes the project's progress.
func (r *PGRepository) Create(ctx context.Context, in NewModule) (*Module, error) {
	var out *Module
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		var id int64
		err := tx.QueryRow(ctx, `INSERT INTO project_modules
				(project_id, name, description, status, progress, assigned_to_id, start_date, end_date, created_at, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
			in.ProjectID, in.Name, in.Description, string(in.Status), in.Progress, in.AssignedToID, in.StartDate, in.EndDate, now).Scan(&id)
		if err != nil {
			return writeError("create", err)
		}
		if err := rollupProject(ctx, tx, in.ProjectID, now); err != nil {
			return err
		}
		out, err = getModule(ctx, tx, id)
		return err
	})
	return out, err
}

// UpdateProgress stores the new progress, records it and refreshes the project.
func (r *PGRepository) UpdateProgress(ctx context.Context, up ProgressUpdate) (*Module, error) {
	var out *Module
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		var projectID int64
		err := tx.QueryRow(ctx, `UPDATE project_modules SET progress = $2, status = $3, updated_at = $4
			WHERE id = $1 RETURNING project_id`, up.ModuleID, up.Progress, string(up.Status), now).Scan(&projectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("modules: update progress: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO module_progress_records (module_id, progress, notes, updated_by_id, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5)`, up.ModuleID, up.Progress, up.Notes, up.UpdatedBy, now); err != nil {
			return fmt.Errorf("modules: record progress: %w", err)
		}
		if err := rollupProject(ctx, tx, projectID, now); err != nil {
			return err
		}
		out, err = getModule(ctx, tx, up.ModuleID)
		return err
	})
	return out, err
}

// SetAssignee changes or clears the module's assignee.
func (r *PGRepository) SetAssignee(ctx context.Context, id int64, userID *int64) (*Module, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE project_modules SET assigned_to_id = $2, updated_at = $3 WHERE id = $1`,
		id, userID, time.Now().UTC())
	if err != nil {
		return nil, writeError("set assignee", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a module and refreshes the project's progress.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var projectID int64
		if err := tx.QueryRow(ctx, `DELETE FROM project_modules WHERE id = $1 RETURNING project_id`, id).Scan(&projectID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("modules: delete: %w", err)
		}
		return rollupProject(ctx, tx, projectID, time.Now().UTC())
	})
}

func rollupProject(ctx context.Context, tx pgx.Tx, projectID int64, now time.Time) error {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("modules: lock project: %w", err)
	}
	rows, err := tx.Query(ctx, `SELECT progress FROM project_modules WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("modules: project progress: %w", err)
	}
	progress, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return fmt.Errorf("modules: project progress: %w", err)
	}
	avg, next, ok := Rollup(projects.Status(status), progress)
	if !ok {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE projects SET progress = $2, status = $3, updated_at = $4 WHERE id = $1`,
		projectID, avg, string(next), now); err != nil {
		return fmt.Errorf("modules: update project progress: %w", err)
	}
	return nil
}

func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: unknown project or user", shared.ErrInvalidInput)
	}
	return fmt.Errorf("modules: %s: %w", op, err)
}

func scanModule(row pgx.Row) (*Module, error) {
	var (
		m            Module
		status       string
		assignedID   *int64
		assignedName string
	)
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &status, &m.Progress,
		&assignedID, &assignedName, &m.StartDate, &m.EndDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Status = Status(status)
	if assignedID != nil {
		m.AssignedTo = &Assignee{ID: *assignedID, Name: assignedName}
	}
	return &m, nil
}

var _ Repository = (*PGRepository)(nil)

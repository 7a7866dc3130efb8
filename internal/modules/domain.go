package modules

import (
	"math"
	"time"

	"github.com/projtrack/projtrack/internal/access"
	"github.com/projtrack/projtrack/internal/projects"
)

// Status is the work state of a module.
type Status string

// Module states.
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaused     Status = "paused"
)

// Valid reports whether s is a known module state.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusPaused:
		return true
	default:
		return false
	}
}

// Assignee is the user a module is assigned to.
type Assignee struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Module is a unit of work inside a project.
type Module struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	ProjectName string     `json:"project_name,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	AssignedTo  *Assignee  `json:"assigned_to"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CanUpdate   bool       `json:"can_update"`
}

// Access converts the module to the evaluator's view.
func (m *Module) Access() *access.Module {
	out := &access.Module{ID: m.ID, ProjectID: m.ProjectID}
	if m.AssignedTo != nil {
		out.AssignedTo = &access.UserRef{ID: m.AssignedTo.ID, Name: m.AssignedTo.Name}
	}
	return out
}

// CreateInput carries the fields of a new module.
type CreateInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description"`
	Status       string `json:"status" validate:"omitempty,oneof=not_started in_progress completed paused"`
	Progress     *int   `json:"progress" validate:"omitempty,gte=0,lte=100"`
	AssignedToID *int64 `json:"assigned_to_id" validate:"omitempty,gt=0"`
	StartDate    string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// ProgressInput is the body of a progress update.
type ProgressInput struct {
	Progress *int   `json:"progress" validate:"required,gte=0,lte=100"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// AssigneeInput names the new assignee; null clears the assignment.
type AssigneeInput struct {
	AssignedToID *int64 `json:"assigned_to_id" validate:"omitempty,gt=0"`
}

// NewModule is the validated form of CreateInput.
type NewModule struct {
	ProjectID    int64
	Name         string
	Description  string
	Status       Status
	Progress     int
	AssignedToID *int64
	StartDate    *time.Time
	EndDate      *time.Time
}

// ProgressUpdate is one recorded progress change.
type ProgressUpdate struct {
	ModuleID  int64
	Progress  int
	Status    Status
	Notes     string
	UpdatedBy int64
}

// StatusFor derives the state implied by a progress value.
func StatusFor(progress int) Status {
	switch {
	case progress <= 0:
		return StatusNotStarted
	case progress >= 100:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// initialState reconciles a requested state with a requested progress for a
// new module so that the two agree.
func initialState(status Status, progress int) (Status, int) {
	switch status {
	case StatusCompleted:
		return StatusCompleted, 100
	case StatusNotStarted:
		return StatusNotStarted, 0
	case StatusInProgress:
		if progress <= 0 {
			progress = 10
		} else if progress >= 100 {
			progress = 99
		}
		return StatusInProgress, progress
	case StatusPaused:
		return StatusPaused, progress
	default:
		return StatusFor(progress), progress
	}
}

// Rollup computes a project's progress from its modules' progress and the
// stage it moves to as a result. ok is false when there are no modules, in
// which case the project is left alone.
func Rollup(current projects.Status, progress []int) (avg int, next projects.Status, ok bool) {
	if len(progress) == 0 {
		return 0, current, false
	}
	total := 0
	for _, p := range progress {
		total += p
	}
	avg = int(math.RoundToEven(float64(total) / float64(len(progress))))

	next = current
	switch {
	case avg == 100 && current == projects.StatusProjectImplementation:
		next = projects.StatusProjectAcceptance
	case avg > 0 && current == projects.StatusContractSigned:
		next = projects.StatusProjectImplementation
	}
	return avg, next, true
}

package projects

import (
	"time"

	"github.com/projtrack/projtrack/internal/access"
)

// Status is the business stage a project is in.
type Status string

// Project stages, in pipeline order.
const (
	StatusInitialContact        Status = "initial_contact"
	StatusProposalSubmitted     Status = "proposal_submitted"
	StatusQuotationSubmitted    Status = "quotation_submitted"
	StatusUserConfirmation      Status = "user_confirmation"
	StatusContractSigned        Status = "contract_signed"
	StatusProjectImplementation Status = "project_implementation"
	StatusProjectAcceptance     Status = "project_acceptance"
	StatusWarrantyPeriod        Status = "warranty_period"
	StatusPostWarranty          Status = "post_warranty"
	StatusNoFollowUp            Status = "no_follow_up"
)

// Statuses lists every project stage.
var Statuses = []Status{
	StatusInitialContact,
	StatusProposalSubmitted,
	StatusQuotationSubmitted,
	StatusUserConfirmation,
	StatusContractSigned,
	StatusProjectImplementation,
	StatusProjectAcceptance,
	StatusWarrantyPeriod,
	StatusPostWarranty,
	StatusNoFollowUp,
}

// Valid reports whether s is a known stage.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Project is a tracked project with its members.
type Project struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Members     []Member   `json:"members"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Member is one membership row with a summary of the user.
type Member struct {
	UserID   int64              `json:"user_id"`
	Role     access.ProjectRole `json:"role"`
	Name     string             `json:"name,omitempty"`
	Position string             `json:"position,omitempty"`
}

// Access converts the project to the evaluator's view.
func (p *Project) Access() *access.Project {
	out := &access.Project{ID: p.ID, Status: string(p.Status)}
	for _, m := range p.Members {
		out.Members = append(out.Members, access.ProjectMember{UserID: m.UserID, Role: m.Role})
	}
	return out
}

// MemberInput names a user and the project role to give them.
type MemberInput struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"omitempty,oneof=leader member"`
}

// CreateInput carries the fields of a new project.
type CreateInput struct {
	Name        string        `json:"name" validate:"required,max=200"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	StartDate   string        `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string        `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Members     []MemberInput `json:"members" validate:"dive"`
}

// UpdateInput carries the fields to change; nil fields are left alone and an
// empty date clears that date.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	StartDate   *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// NewProject is the validated form of CreateInput handed to the repository.
type NewProject struct {
	Name        string
	Description string
	Status      Status
	StartDate   *time.Time
	EndDate     *time.Time
	Members     []access.ProjectMember
}

// Changes is the validated form of UpdateInput.
type Changes struct {
	Name           *string
	Description    *string
	Status         *Status
	StartDate      *time.Time
	EndDate        *time.Time
	ClearStartDate bool
	ClearEndDate   bool
}

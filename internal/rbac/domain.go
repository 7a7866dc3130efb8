package rbac

// Recorder receives every authorization decision taken through Service.
type Recorder interface {
	RecordAuthzDecision(check, key string, allowed bool)
}

// Check kinds passed to Recorder.
const (
	CheckGlobal  = "global"
	CheckProject = "project"
	CheckModule  = "module"
)

// Grant lists the global roles holding a permission.
type Grant struct {
	Permission string   `json:"permission"`
	Roles      []string `json:"roles"`
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthzDecision(string, string, bool) {}

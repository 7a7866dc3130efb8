package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes expired login sessions.
	TaskSessionSweep = "session:sweep"
	// SessionSweepSpec runs the sweep every 15 minutes.
	SessionSweepSpec = "*/15 * * * *"
)

// SessionSweepPayload records why a sweep was queued.
type SessionSweepPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewSessionSweepTask constructs the sweep task.
func NewSessionSweepTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(SessionSweepPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

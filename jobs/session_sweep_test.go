package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/projtrack/projtrack/internal/jobs"
	_ "github.com/projtrack/projtrack/testing"
)

type fakeSweeper struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeSweeper) SweepExpired(context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSessionSweepRecordsRemovedRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	sweeper := &fakeSweeper{removed: 4}
	job := NewSessionSweepJob(sweeper, nil, jobmetrics.NewMetrics(reg))

	task, err := NewSessionSweepTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 4.0, counterValue(t, reg, "projtrack_sessions_swept_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "projtrack_jobs_total",
		map[string]string{"job": TaskSessionSweep, "status": "success"}))
}

func TestSessionSweepFailureIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job := NewSessionSweepJob(sweeper, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, nil))
	require.EqualError(t, err, "db down")
	assert.Equal(t, 1.0, counterValue(t, reg, "projtrack_jobs_failures_total",
		map[string]string{"job": TaskSessionSweep}))
	assert.Equal(t, 0.0, counterValue(t, reg, "projtrack_sessions_swept_total", nil))
}

func TestSessionSweepRejectsBadPayload(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewSessionSweepJob(sweeper, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, sweeper.calls)
}

func TestSessionSweepWithoutSweeper(t *testing.T) {
	var job *SessionSweepJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, nil)))
}

func TestNewWorkerRegistersCron(t *testing.T) {
	task, err := NewSessionSweepTask("cron")
	require.NoError(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers: []TaskHandler{
			{Type: TaskSessionSweep, Handler: NewSessionSweepJob(&fakeSweeper{}, nil, nil).Handle},
			{Type: "", Handler: nil},
		},
		Cron: []CronRegistration{{Spec: SessionSweepSpec, Task: task}},
	})
	require.NoError(t, err)
	assert.NotNil(t, w.scheduler)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)
}

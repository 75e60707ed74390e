package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/scheduler/mocks"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

// NewTestSlogger creates a *slog.Logger writing JSON into a buffer.
func NewTestSlogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func eventTypes(hub *events.Hub) []string {
	var out []string
	for _, ev := range hub.SnapshotSince(0) {
		out = append(out, ev.Type)
	}
	return out
}

func TestCalculateJitteredInterval(t *testing.T) {
	tests := []struct {
		name         string
		baseInterval time.Duration
		jitter       time.Duration
	}{
		{name: "No Jitter", baseInterval: 1 * time.Minute, jitter: 0},
		{name: "Positive Jitter", baseInterval: 5 * time.Minute, jitter: 30 * time.Second},
		{name: "Large Jitter", baseInterval: 1 * time.Hour, jitter: 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 100 {
				jittered := calculateJitteredInterval(tt.baseInterval, tt.jitter)
				if tt.jitter == 0 {
					assert.Equal(t, tt.baseInterval, jittered)
				} else {
					assert.GreaterOrEqual(t, jittered, tt.baseInterval)
					assert.Less(t, jittered, tt.baseInterval+tt.jitter)
				}
			}
		})
	}
}

func TestTriggerStartsIdleRunner(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	hub := events.NewHub(16)
	logger, _ := NewTestSlogger()

	gomock.InOrder(
		runner.EXPECT().Status().Return(control.Status{State: control.Idle}),
		runner.EXPECT().Start(gomock.Any()).Return(nil),
		runner.EXPECT().Status().Return(control.Status{State: control.Running, RunID: "r1"}),
	)

	s := New(Config{Every: time.Minute}, runner, nil, hub, logger)
	assert.True(t, s.Trigger(context.Background()))
	assert.Equal(t, []string{events.ScheduleTriggered}, eventTypes(hub))

	var payload events.SchedulePayload
	require.NoError(t, hub.SnapshotSince(0)[0].Decode(&payload))
	assert.Equal(t, "r1", payload.RunID)
}

func TestTriggerResetsFinishedRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	logger, _ := NewTestSlogger()

	gomock.InOrder(
		runner.EXPECT().Status().Return(control.Status{State: control.Failed}),
		runner.EXPECT().Reset().Return(nil),
		runner.EXPECT().Start(gomock.Any()).Return(nil),
		runner.EXPECT().Status().Return(control.Status{State: control.Running}),
	)

	s := New(Config{Every: time.Minute}, runner, nil, nil, logger)
	assert.True(t, s.Trigger(context.Background()))
}

func TestTriggerSkips(t *testing.T) {
	tests := []struct {
		name   string
		expect func(r *mocks.MockRunner)
		reason string
	}{
		{
			name: "run in flight",
			expect: func(r *mocks.MockRunner) {
				r.EXPECT().Status().Return(control.Status{State: control.Running, RunID: "busy"})
			},
			reason: "run in progress",
		},
		{
			name: "reset refused",
			expect: func(r *mocks.MockRunner) {
				r.EXPECT().Status().Return(control.Status{State: control.Completed})
				r.EXPECT().Reset().Return(control.ErrRunning)
			},
			reason: control.ErrRunning.Error(),
		},
		{
			name: "lost the race to another starter",
			expect: func(r *mocks.MockRunner) {
				r.EXPECT().Status().Return(control.Status{State: control.Idle})
				r.EXPECT().Start(gomock.Any()).Return(control.ErrNotIdle)
			},
			reason: "controller not idle",
		},
		{
			name: "start error",
			expect: func(r *mocks.MockRunner) {
				r.EXPECT().Status().Return(control.Status{State: control.Idle})
				r.EXPECT().Start(gomock.Any()).Return(errors.New("toolbox locked"))
			},
			reason: "toolbox locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			runner := mocks.NewMockRunner(ctrl)
			tt.expect(runner)
			hub := events.NewHub(16)
			logger, _ := NewTestSlogger()

			s := New(Config{Every: time.Minute}, runner, nil, hub, logger)
			assert.False(t, s.Trigger(context.Background()))

			evs := hub.SnapshotSince(0)
			require.Len(t, evs, 1)
			assert.Equal(t, events.ScheduleSkipped, evs[0].Type)
			var payload events.SchedulePayload
			require.NoError(t, evs[0].Decode(&payload))
			assert.Equal(t, tt.reason, payload.Reason)
		})
	}
}

func TestPrune(t *testing.T) {
	ctrl := gomock.NewController(t)
	pruner := mocks.NewMockPruner(ctrl)
	hub := events.NewHub(16)
	logger, logs := NewTestSlogger()

	gomock.InOrder(
		pruner.EXPECT().Prune(gomock.Any(), 24*time.Hour).Return(int64(3), nil),
		pruner.EXPECT().Prune(gomock.Any(), 24*time.Hour).Return(int64(0), errors.New("disk full")),
	)

	s := New(Config{Retention: 24 * time.Hour}, nil, pruner, hub, logger)
	assert.Equal(t, int64(3), s.Prune(context.Background()))
	assert.Equal(t, int64(0), s.Prune(context.Background()))
	assert.Equal(t, []string{events.JournalPruned}, eventTypes(hub))
	assert.Contains(t, logs.String(), "disk full")

	disabled := New(Config{}, nil, pruner, hub, logger)
	assert.Equal(t, int64(0), disabled.Prune(context.Background()))
}

func TestRunLoopDrivesController(t *testing.T) {
	var runs atomic.Int32
	tb := toolbox.New(processor.NewRegistry())
	require.NoError(t, tb.AddProcessorInstance("job", &countingJob{Base: processor.NewBase("job", "job"), runs: &runs}))
	require.NoError(t, tb.PushBackToRunQueue("job"))
	c := control.New(tb)

	logger, _ := NewTestSlogger()
	s := New(Config{Every: 5 * time.Millisecond}, c, nil, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, time.Millisecond)
	s.Stop()
	s.Stop()
	c.Wait()
}

type countingJob struct {
	processor.Base
	runs *atomic.Int32
}

func (*countingJob) Configure(*config.Node) error { return nil }

func (j *countingJob) Execute(context.Context) error {
	j.runs.Add(1)
	return nil
}

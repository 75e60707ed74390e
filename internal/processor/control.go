package processor

import (
	"context"
	"time"
)

// Control is the view of the run controller that slots and executors see.
type Control interface {
	// Checkpoint returns ErrCancelled once cancellation was requested and
	// blocks while the run is parked at a breakpoint.
	Checkpoint() error
	// Break parks the calling chain until the run is continued or cancelled.
	Break() error
	Cancelled() bool
	// CycleTime is how often waiting participants should poll.
	CycleTime() time.Duration
}

type controlKey struct{}

// WithControl attaches c to ctx for the duration of a run.
func WithControl(ctx context.Context, c Control) context.Context {
	return context.WithValue(ctx, controlKey{}, c)
}

// ControlFrom returns the Control attached to ctx. Outside a run it returns
// a Control that never cancels and never parks.
func ControlFrom(ctx context.Context) Control {
	if c, ok := ctx.Value(controlKey{}).(Control); ok && c != nil {
		return c
	}
	return noControl{}
}

// Checkpoint is the cooperative cancellation point for long-running slots.
func Checkpoint(ctx context.Context) error {
	return ControlFrom(ctx).Checkpoint()
}

// Sleep waits for d in cycle-time steps, checkpointing before each one, so a
// cancellation ends the wait within one cycle.
func Sleep(ctx context.Context, d time.Duration) error {
	ctl := ControlFrom(ctx)
	step := ctl.CycleTime()
	if step <= 0 || step > d {
		step = d
	}
	for d > 0 {
		if err := ctl.Checkpoint(); err != nil {
			return err
		}
		wait := min(step, d)
		time.Sleep(wait)
		d -= wait
	}
	return ctl.Checkpoint()
}

type noControl struct{}

func (noControl) Checkpoint() error { return nil }
func (noControl) Break() error      { return nil }
func (noControl) Cancelled() bool   { return false }

func (noControl) CycleTime() time.Duration { return 0 }

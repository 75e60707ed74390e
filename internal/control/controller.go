package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/events"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/metrics"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

// minTick bounds the polling interval when the cycle time is zero.
const minTick = time.Millisecond

// Controller drives one run of a toolbox's run queue at a time.
type Controller struct {
	tb       *toolbox.Toolbox
	events   *events.Hub
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	cycleTime atomic.Int64
	cancelled atomic.Bool
	code      atomic.Int64
	atBreak   atomic.Int32

	mu         sync.Mutex
	status     Status
	cancelCh   chan struct{}
	continueCh chan struct{}
	done       chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

func WithEvents(hub *events.Hub) Option {
	return func(c *Controller) { c.events = hub }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l.With("component", "control") }
}

func WithCycleTime(d time.Duration) Option {
	return func(c *Controller) { c.cycleTime.Store(int64(d)) }
}

// New creates an idle controller for tb.
func New(tb *toolbox.Toolbox, opts ...Option) *Controller {
	c := &Controller{
		tb:         tb,
		logger:     log.WithComponent("control"),
		status:     Status{State: Idle},
		cancelCh:   make(chan struct{}),
		continueCh: make(chan struct{}),
	}
	c.cycleTime.Store(int64(config.DefaultCycleTime))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Toolbox returns the toolbox this controller runs.
func (c *Controller) Toolbox() *toolbox.Toolbox { return c.tb }

// Run executes the run queue to completion on the calling goroutine.
// Completed and Cancelled runs return nil; a failed run returns *RunError.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.execute(ctx)
}

// Start executes the run queue on a new goroutine. Use Wait to collect it.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	go func() {
		_ = c.execute(ctx)
	}()
	return nil
}

// Wait blocks until the current run is terminal and returns its status.
func (c *Controller) Wait() Status {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return c.Status()
}

// Status returns a copy of the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Status {
	st := c.status
	st.Executed = append([]string{}, c.status.Executed...)
	if c.status.Failure != nil {
		f := *c.status.Failure
		st.Failure = &f
	}
	st.CancelRequested = c.cancelled.Load()
	st.AtBreak = c.atBreak.Load() > 0
	return st
}

// Reset returns a terminal controller to Idle and clears the cancellation flag.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State == Running {
		return ErrRunning
	}
	c.status = Status{State: Idle}
	c.cancelled.Store(false)
	c.code.Store(0)
	c.cancelCh = make(chan struct{})
	c.done = nil
	return nil
}

// RequestCancellation asks the run to stop at the next boundary. Only the
// first request's code is kept. Requests made while idle apply to the next run.
func (c *Controller) RequestCancellation(code int) {
	c.mu.Lock()
	if c.cancelled.Load() {
		c.mu.Unlock()
		return
	}
	c.code.Store(int64(code))
	c.cancelled.Store(true)
	close(c.cancelCh)
	runID := c.status.RunID
	c.mu.Unlock()

	c.logger.Info("cancellation requested", "run_id", runID, "code", code)
	c.events.Publish(events.CancelRequested, events.RunPayload{RunID: runID, State: Running.String(), Code: code})
}

// Cancelled reports whether cancellation was requested.
func (c *Controller) Cancelled() bool { return c.cancelled.Load() }

// Checkpoint returns processor.ErrCancelled once cancellation was requested
// and blocks while the run is parked at a breakpoint.
func (c *Controller) Checkpoint() error {
	if c.cancelled.Load() {
		return processor.ErrCancelled
	}
	if c.atBreak.Load() == 0 {
		return nil
	}
	c.mu.Lock()
	cont, cancel := c.continueCh, c.cancelCh
	c.mu.Unlock()
	return c.park(cont, cancel)
}

// Break parks the calling chain until Continue or cancellation.
func (c *Controller) Break() error {
	if c.cancelled.Load() {
		return processor.ErrCancelled
	}
	c.mu.Lock()
	cont, cancel := c.continueCh, c.cancelCh
	runID := c.status.RunID
	c.atBreak.Add(1)
	c.mu.Unlock()
	defer c.atBreak.Add(-1)

	c.logger.Info("breakpoint reached", "run_id", runID)
	c.events.Publish(events.BreakReached, events.RunPayload{RunID: runID, State: Running.String()})
	return c.park(cont, cancel)
}

func (c *Controller) park(cont, cancel <-chan struct{}) error {
	timer := time.NewTimer(c.tick())
	defer timer.Stop()
	for {
		select {
		case <-cont:
			return nil
		case <-cancel:
			return processor.ErrCancelled
		case <-timer.C:
			if c.cancelled.Load() {
				return processor.ErrCancelled
			}
			timer.Reset(c.tick())
		}
	}
}

// Continue releases every chain parked at a breakpoint.
func (c *Controller) Continue() {
	c.mu.Lock()
	close(c.continueCh)
	c.continueCh = make(chan struct{})
	runID := c.status.RunID
	c.mu.Unlock()

	c.events.Publish(events.RunContinued, events.RunPayload{RunID: runID, State: Running.String()})
}

// IsAtBreak reports whether any chain is parked at a breakpoint.
func (c *Controller) IsAtBreak() bool { return c.atBreak.Load() > 0 }

// WaitForBreakOrEnd polls at the cycle time until a chain is parked or the
// run is terminal. It reports whether the run is at a break.
func (c *Controller) WaitForBreakOrEnd(ctx context.Context) (bool, error) {
	for {
		if c.IsAtBreak() {
			return true, nil
		}
		if st := c.Status(); st.State != Running {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.tick()):
		}
	}
}

// SetCycleTime sets the polling period used while parked, in milliseconds.
func (c *Controller) SetCycleTime(ms uint) {
	c.cycleTime.Store(int64(time.Duration(ms) * time.Millisecond))
	c.events.Publish(events.CycleTimeChanged, map[string]any{"cycle_time_ms": ms})
}

func (c *Controller) CycleTime() time.Duration {
	return time.Duration(c.cycleTime.Load())
}

func (c *Controller) CycleTimeMS() uint {
	return uint(c.CycleTime() / time.Millisecond)
}

func (c *Controller) tick() time.Duration {
	if d := c.CycleTime(); d > minTick {
		return d
	}
	return minTick
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State != Idle {
		return fmt.Errorf("%w: state is %s", ErrNotIdle, c.status.State)
	}
	if err := c.tb.BeginRun(); err != nil {
		return err
	}

	now := time.Now().UTC()
	c.status = Status{
		RunID:       uuid.NewString(),
		State:       Running,
		Executed:    []string{},
		Fingerprint: c.tb.Fingerprint(),
		StartedAt:   &now,
	}
	c.done = make(chan struct{})
	return nil
}

func (c *Controller) execute(ctx context.Context) error {
	st := c.Status()
	logger := c.logger.With("run_id", st.RunID)

	if ctx.Err() != nil {
		c.RequestCancellation(ExitInterrupted)
	}
	stop := context.AfterFunc(ctx, func() {
		c.RequestCancellation(ExitInterrupted)
	})
	defer stop()

	if c.recorder != nil {
		if err := c.recorder.RunStarted(context.WithoutCancel(ctx), st); err != nil {
			logger.Warn("failed to record run start", "error", err)
		}
	}
	c.metrics.RunStarted()
	c.events.Publish(events.RunStarted, events.RunPayload{RunID: st.RunID, State: Running.String()})

	queue := c.tb.RunQueue()
	parallel := !c.tb.RunSingleThreaded()
	logger.Info("run started", "entries", len(queue), "parallel", parallel)

	// Chains are never interrupted mid-flight; only boundaries observe ctx.
	runCtx := processor.WithControl(context.WithoutCancel(ctx), c)

	var err error
	for _, group := range queue {
		if parallel && len(group) > 1 {
			err = c.runGroup(runCtx, st.RunID, group)
		} else {
			err = c.runSerial(runCtx, st.RunID, group)
		}
		if err != nil {
			break
		}
	}
	if err == nil && c.cancelled.Load() {
		err = processor.ErrCancelled
	}
	return c.finish(ctx, logger, err)
}

func (c *Controller) runSerial(ctx context.Context, runID string, entries []string) error {
	for _, entry := range entries {
		if c.cancelled.Load() {
			return processor.ErrCancelled
		}
		if err := c.runChain(ctx, runID, entry); err != nil {
			return err
		}
	}
	return nil
}

// runGroup runs each entry on its own goroutine and waits for all of them.
// A chain failure wins over a peer's cancellation; among failures the
// earliest entry in the group is reported.
func (c *Controller) runGroup(ctx context.Context, runID string, entries []string) error {
	if c.cancelled.Load() {
		return processor.ErrCancelled
	}
	errs := make([]error, len(entries))
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			errs[i] = c.runChain(ctx, runID, entry)
			return errs[i]
		})
	}
	_ = g.Wait()

	var cancelErr error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, processor.ErrCancelled):
			if cancelErr == nil {
				cancelErr = err
			}
		default:
			return err
		}
	}
	return cancelErr
}

func (c *Controller) runChain(ctx context.Context, runID, entry string) error {
	p, ok := c.tb.Processor(entry)
	if !ok {
		return &chainError{entry: entry, err: fmt.Errorf("%w: %q", toolbox.ErrUnknownProcessor, entry)}
	}

	c.mu.Lock()
	c.status.Executed = append(c.status.Executed, entry)
	c.mu.Unlock()
	c.events.Publish(events.ChainStarted, events.ChainPayload{RunID: runID, Entry: entry})

	start := time.Now()
	err := trigger(ctx, p)
	elapsed := time.Since(start)

	payload := events.ChainPayload{RunID: runID, Entry: entry, DurationMS: elapsed.Milliseconds()}
	switch {
	case err == nil:
		payload.Result = "completed"
	case errors.Is(err, processor.ErrQuitChain):
		payload.Result = "quit"
		err = nil
	case errors.Is(err, processor.ErrCancelled) && c.cancelled.Load():
		payload.Result = "cancelled"
	case errors.Is(err, processor.ErrCancelled):
		err = unrequestedCancel(err)
		fallthrough
	default:
		payload.Result = "failed"
		f := newFailure(&chainError{entry: entry, err: err})
		payload.Processor, payload.Endpoint, payload.Error = f.Processor, f.Endpoint, f.Message
	}
	c.metrics.ChainFinished(entry, payload.Result, elapsed)

	if payload.Result == "failed" {
		c.events.Publish(events.ChainFailed, payload)
		c.logger.Error("chain failed", "run_id", runID, "entry", entry, "error", err)
		return &chainError{entry: entry, err: err}
	}
	c.events.Publish(events.ChainCompleted, payload)
	c.logger.Debug("chain finished", "run_id", runID, "entry", entry, "result", payload.Result, "duration_ms", payload.DurationMS)
	if err != nil {
		return &chainError{entry: entry, err: err}
	}
	return nil
}

// trigger starts one chain: Execute for executors, otherwise a fresh frame
// on the primary signal.
func trigger(ctx context.Context, p processor.Processor) error {
	if ex, ok := p.(processor.Executor); ok {
		return ex.Execute(ctx)
	}
	sig, ok := p.Endpoints().Primary()
	if !ok {
		return fmt.Errorf("%w: %q", toolbox.ErrNotEntryProcessor, p.Name())
	}
	f := frame.Acquire()
	defer frame.Release(f)
	return sig.Emit(ctx, f)
}

func (c *Controller) finish(ctx context.Context, logger *slog.Logger, err error) error {
	var failure *Failure
	cancelled := false
	switch {
	case err == nil:
	case errors.Is(err, processor.ErrCancelled):
		cancelled = true
	default:
		failure = newFailure(err)
	}

	c.mu.Lock()
	now := time.Now().UTC()
	c.status.FinishedAt = &now
	switch {
	case failure != nil:
		c.status.State = Failed
		c.status.Code = ExitError
		c.status.Failure = failure
	case cancelled:
		c.status.State = Cancelled
		c.status.Code = int(c.code.Load())
	default:
		c.status.State = Completed
		c.status.Code = ExitSuccess
	}
	c.tb.EndRun()
	st := c.snapshotLocked()
	done := c.done
	c.mu.Unlock()

	c.metrics.RunFinished(st.State.String())
	if cancelled {
		c.metrics.Cancelled()
	}

	payload := events.RunPayload{RunID: st.RunID, State: st.State.String(), Code: st.Code, Executed: st.Executed}
	switch st.State {
	case Failed:
		payload.Error = failure.Message
		c.events.Publish(events.RunFailed, payload)
		logger.Error("run failed", "entry", failure.Entry, "processor", failure.Processor, "endpoint", failure.Endpoint, "error", failure.Message)
	case Cancelled:
		c.events.Publish(events.RunCancelled, payload)
		logger.Info("run cancelled", "code", st.Code, "executed", len(st.Executed))
	default:
		c.events.Publish(events.RunCompleted, payload)
		logger.Info("run completed", "executed", len(st.Executed))
	}

	if c.recorder != nil {
		if rerr := c.recorder.RunFinished(context.WithoutCancel(ctx), st); rerr != nil {
			logger.Warn("failed to record run finish", "error", rerr)
		}
	}
	close(done)

	if failure != nil {
		return &RunError{Failure: *failure}
	}
	return nil
}

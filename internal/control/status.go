package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/tessera/internal/processor"
)

// Process exit codes carried by a run status.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitInterrupted = 130
)

var (
	// ErrNotIdle is returned when a run is started outside the Idle state.
	ErrNotIdle = errors.New("controller is not idle")
	// ErrRunning is returned by Reset while a run is in flight.
	ErrRunning = errors.New("run in progress")
	// ErrUnrequestedCancel fails a chain that reported a cancellation nobody asked for.
	ErrUnrequestedCancel = errors.New("chain reported cancellation without a request")
)

// State is the controller lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Failed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Failure locates the error that ended a run.
type Failure struct {
	Entry     string `json:"entry"`
	Processor string `json:"processor"`
	Endpoint  string `json:"endpoint,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	RunID           string     `json:"run_id,omitempty"`
	State           State      `json:"state"`
	Code            int        `json:"code"`
	Executed        []string   `json:"executed"`
	Failure         *Failure   `json:"failure,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	AtBreak         bool       `json:"at_break"`
	Fingerprint     string     `json:"fingerprint,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// RunError is returned by Run when a chain failed.
type RunError struct {
	Failure Failure
}

func (e *RunError) Error() string {
	f := e.Failure
	if f.Endpoint == "" {
		return fmt.Sprintf("run failed in %s: %s", f.Processor, f.Message)
	}
	return fmt.Sprintf("run failed in %s: %s", processor.Address(f.Processor, f.Endpoint), f.Message)
}

func (e *RunError) Unwrap() error { return e.Failure.Err }

// chainError tags a chain error with the run-queue entry that triggered it.
type chainError struct {
	entry string
	err   error
}

func (e *chainError) Error() string { return e.entry + ": " + e.err.Error() }

func (e *chainError) Unwrap() error { return e.err }

// unrequestedCancel replaces a stray ErrCancelled with ErrUnrequestedCancel,
// keeping the slot location when there is one.
func unrequestedCancel(err error) error {
	var de *processor.DispatchError
	if errors.As(err, &de) {
		return &processor.DispatchError{Processor: de.Processor, Endpoint: de.Endpoint, Err: ErrUnrequestedCancel}
	}
	return ErrUnrequestedCancel
}

func newFailure(err error) *Failure {
	f := &Failure{Err: err, Message: err.Error()}

	var ce *chainError
	if errors.As(err, &ce) {
		f.Entry = ce.entry
		f.Processor = ce.entry
		f.Err = ce.err
		f.Message = ce.err.Error()
	}

	var de *processor.DispatchError
	if errors.As(err, &de) {
		f.Processor = de.Processor
		f.Endpoint = de.Endpoint
		f.Message = de.Err.Error()
	}
	return f
}

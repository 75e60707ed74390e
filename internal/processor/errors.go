package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned when the factory cannot produce a type.
	ErrUnknownType = errors.New("unknown processor type")
	// ErrUnknownEndpoint is returned when a processor has no signal or slot by that name.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrAlreadyConnected is returned when a signal is already wired to a slot.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when disconnecting a pair that is not wired.
	ErrNotConnected = errors.New("not connected")
	// ErrNoCallable is returned when a slot is invoked before a function is bound.
	ErrNoCallable = errors.New("slot has no callable")

	// ErrQuitChain ends the current chain early without failing the run.
	ErrQuitChain = errors.New("quit chain")
	// ErrCancelled is returned from checkpoints once cancellation was requested.
	ErrCancelled = errors.New("run cancelled")
)

// DispatchError records which slot a chain failed in. It is attached once,
// by the slot closest to the failure; outer emissions pass it through.
type DispatchError struct {
	Processor string
	Endpoint  string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s:%s: %v", e.Processor, e.Endpoint, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func wrapDispatch(processor, endpoint string, err error) error {
	var de *DispatchError
	if errors.As(err, &de) {
		return err
	}
	return &DispatchError{Processor: processor, Endpoint: endpoint, Err: err}
}

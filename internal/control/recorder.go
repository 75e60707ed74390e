package control

import "context"

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/tessera/internal/control Recorder

// Recorder journals run lifecycle transitions.
type Recorder interface {
	RunStarted(ctx context.Context, st Status) error
	RunFinished(ctx context.Context, st Status) error
}

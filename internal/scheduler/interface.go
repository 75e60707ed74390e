package scheduler

import (
	"context"
	"time"

	"github.com/mattjoyce/tessera/internal/control"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/tessera/internal/scheduler Runner,Pruner

// Runner is the controller surface the scheduler starts runs through.
type Runner interface {
	Status() control.Status
	Reset() error
	Start(ctx context.Context) error
}

// Pruner trims the run journal.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

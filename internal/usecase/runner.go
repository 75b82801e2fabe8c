package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
)

// SyncRunner executes one sync run
type SyncRunner interface {
	Run(ctx context.Context, runID string) (*domain.SyncSummary, error)
}

// Runner triggers sync runs in the background and remembers the last one.
// Only one run may be active per process.
type Runner struct {
	ctx     context.Context
	service SyncRunner
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	last    *domain.SyncSummary
	wg      sync.WaitGroup
}

// NewRunner creates a runner whose runs inherit ctx
func NewRunner(ctx context.Context, service SyncRunner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{ctx: ctx, service: service, logger: logger}
}

// Trigger starts a run and returns its id without waiting for it
func (r *Runner) Trigger() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return "", domain.ErrSyncInProgress
	}
	r.running = true

	runID := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		summary, err := r.service.Run(r.ctx, runID)
		if err != nil {
			r.logger.Error("sync run failed", zap.String("run_id", runID), zap.Error(err))
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.running = false
		if summary != nil {
			r.last = summary
		}
	}()

	return runID, nil
}

// Running reports whether a run is active
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastRun returns a copy of the most recent finished run, or nil
func (r *Runner) LastRun() *domain.SyncSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	last := *r.last
	return &last
}

// Wait blocks until the active run, if any, has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Package jobs runs student bulk operations in the background, detached
// from the request that triggered them.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Func is the body of a background job.
type Func func(ctx context.Context) error

// Runner starts jobs in their own goroutines. Jobs report nothing back to
// the caller; outcomes are visible only in the logs.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a new Runner.
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel}
}

// Submit starts fn and returns the job id used in its log lines.
func (r *Runner) Submit(name string, fn Func) string {
	id := uuid.New().String()
	logger := log.With().Str("job_id", id).Str("job", name).Logger()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error().Interface("panic", p).Msg("Background job panicked")
			}
		}()

		start := time.Now()
		logger.Info().Msg("Background job started")
		if err := fn(r.ctx); err != nil {
			logger.Error().Err(err).Dur("took", time.Since(start)).Msg("Background job failed")
			return
		}
		logger.Info().Dur("took", time.Since(start)).Msg("Background job finished")
	}()
	return id
}

// Stop waits for running jobs up to timeout, then cancels their context
// and waits for them to return.
func (r *Runner) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("Background jobs still running, cancelling them")
		r.cancel()
		<-done
	}
	r.cancel()
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/pkg/models"
)

const recorderWriteTimeout = 5 * time.Second

// RunRecorder persists run records off the request path. Records are queued
// on a buffered channel and written by a single goroutine so the dispatcher
// never blocks on the database.
type RunRecorder struct {
	repos *repositories.Repositories

	queue   chan *models.Run
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewRunRecorder creates a run recorder with the given queue capacity.
func NewRunRecorder(repos *repositories.Repositories, buffer int) *RunRecorder {
	if buffer <= 0 {
		buffer = 256
	}

	return &RunRecorder{
		repos: repos,
		queue: make(chan *models.Run, buffer),
	}
}

// Start launches the writer goroutine.
func (r *RunRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("run recorder is already running")
	}

	r.wg.Add(1)
	go r.runWriter()

	r.running = true
	logging.Debug("Run recorder started with queue capacity %d", cap(r.queue))

	return nil
}

// Record queues a run for persistence. Records are dropped when the recorder
// is stopped or the queue is full; recording must never block a request.
func (r *RunRecorder) Record(run *models.Run) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		logging.Debug("Run recorder not running, dropping run %s", run.ID)
		return
	}

	select {
	case r.queue <- run:
	default:
		logging.Debug("Run recorder queue full, dropping run %s", run.ID)
	}
}

// Stop drains the queue and stops the writer. Pending records are flushed
// with a timeout so shutdown cannot hang on a stuck database.
func (r *RunRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Run recorder stopped gracefully")
	case <-time.After(5 * time.Second):
		logging.Error("Run recorder flush timeout, some runs may be lost")
	}

	r.running = false
}

// runWriter drains the queue until it is closed.
func (r *RunRecorder) runWriter() {
	defer r.wg.Done()

	for run := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
		if err := r.repos.Runs.Create(ctx, run); err != nil {
			logging.Error("Failed to record run %s: %v", run.ID, err)
		}
		cancel()
	}
}

// Pending returns the number of queued records. Used for status reporting.
func (r *RunRecorder) Pending() int {
	return len(r.queue)
}

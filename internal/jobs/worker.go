package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobProcessor runs one pass over pending work.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor once at start and then on every tick until it
// is stopped or its context ends. Passes never overlap.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
	startOnce    sync.Once
	started      chan struct{}
	logger       *zap.Logger
}

// NewWorker creates a Worker for the named job.
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		started:      make(chan struct{}),
		logger:       zap.L().With(zap.String("service", "worker"), zap.String("job", name)),
	}
}

// Start blocks running the polling loop. Calls after the first return at once.
func (w *Worker) Start(ctx context.Context) {
	first := false
	w.startOnce.Do(func() {
		first = true
		close(w.started)
	})
	if !first {
		return
	}
	defer close(w.doneChan)

	select {
	case <-w.stopChan:
		return
	default:
	}

	w.logger.Info("worker started", zap.Duration("poll_interval", w.pollInterval))

	failures := 0
	runPass := func() {
		if err := w.processor.ProcessJobs(ctx); err != nil {
			failures++
			w.logger.Error("job pass failed", zap.Error(err), zap.Int("consecutive_failures", failures))
			return
		}
		if failures > 0 {
			w.logger.Info("job pass recovered", zap.Int("after_failures", failures))
		}
		failures = 0
	}

	runPass()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			runPass()
		}
	}
}

// Stop signals the loop and waits for the current pass to finish. It is
// safe to call more than once, and before Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	select {
	case <-w.started:
		<-w.doneChan
	default:
	}
	w.logger.Info("worker shutdown complete")
}

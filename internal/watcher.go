package internal

import (
	"context"
	"sync"
	"time"
)

// Watcher repeats ingestion cycles on a fixed interval. Ticks are explicitly
// serialized: a tick that is still running when the timer fires again
// suppresses the new tick, so the same session natural key never has two
// concurrent writers.
type Watcher struct {
	orchestrator *Orchestrator
	interval     time.Duration

	mu       sync.Mutex
	inFlight bool
}

// NewWatcher creates a watcher around an orchestrator
func NewWatcher(orchestrator *Orchestrator, interval time.Duration) *Watcher {
	return &Watcher{orchestrator: orchestrator, interval: interval}
}

// Run executes cycles until the context is cancelled. The first cycle starts
// immediately. Run returns once the in-flight tick has finished, so callers
// can release the store connection safely afterwards.
func (w *Watcher) Run(ctx context.Context) error {
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			LogInfo("Watcher stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one cycle unless one is already in flight
func (w *Watcher) tick(ctx context.Context) {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		LogWarn("Previous cycle still running, skipping tick")
		return
	}
	w.inFlight = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inFlight = false
		w.mu.Unlock()
	}()

	report, err := w.orchestrator.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		LogError("Cycle failed: %v", err)
		return
	}
	LogInfo("Cycle complete: %d sources ok, %d failed, %d sessions upserted",
		report.Succeeded, report.Failed, report.Counts.SessionsUpserted)
}

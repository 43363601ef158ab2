package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the runner looks for due items
const DefaultPollInterval = 5 * time.Second

/* Runner is the timer-driven processing loop
 * One pass at a time per runner, fan-out happens inside ProcessReady
 * Several runners may share a store, claims keep them apart
 */
type Runner struct {
	queue    *Queue
	interval time.Duration
	workerID string
	logger   zerolog.Logger

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner for q
func NewRunner(q *Queue, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	workerID := uuid.New().String()
	return &Runner{
		queue:    q,
		interval: interval,
		workerID: workerID,
		logger:   logger.With().Str("component", "runner").Str("worker_id", workerID).Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WorkerID identifies this runner in heartbeats
func (r *Runner) WorkerID() string {
	return r.workerID
}

// Start launches the loop, it ends when ctx is cancelled or Stop is called
// Only the first call does anything, a stopped runner stays stopped
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.loop(ctx)
}

// Stop ends the loop and waits for the current pass to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.started = true
		close(r.done)
	}
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("queue runner started")
	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("queue runner stopped")
			return
		case <-r.stop:
			r.logger.Info().Msg("queue runner stopped")
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	r.heartbeat(ctx, "processing")
	defer r.heartbeat(ctx, "idle")

	result, err := r.queue.ProcessReady(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("queue pass failed")
		return
	}
	if result.Claimed == 0 {
		return
	}
	r.logger.Info().
		Int("claimed", result.Claimed).
		Int("succeeded", result.Succeeded).
		Int("retried", result.Retried).
		Int("dead_lettered", result.DeadLettered).
		Int("errors", result.Errors).
		Msg("queue pass finished")
}

func (r *Runner) heartbeat(ctx context.Context, status string) {
	hb, ok := r.queue.store.(webhook.HeartbeatStore)
	if !ok || ctx.Err() != nil {
		return
	}
	if err := hb.SetWorkerHeartbeat(ctx, r.workerID, status); err != nil {
		r.logger.Warn().Err(err).Msg("writing heartbeat")
	}
}

package queue

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	reasonNotFound    = "webhook not found"
	reasonInactive    = "webhook inactive"
	reasonCircuitOpen = "circuit open"
)

/* Queue drives each item to success or to the dead-letter queue
 * Items are only processed under a store claim, so two passes never run the same item
 * Delivery failures are bookkeeping, they never surface as errors
 */
type Queue struct {
	store     webhook.Store
	deliverer webhook.Deliverer
	breaker   *breaker.Breaker
	cfg       Config
	logger    zerolog.Logger
}

// PassResult counts what one ProcessReady pass did
type PassResult struct {
	Claimed      int
	Succeeded    int
	Retried      int
	DeadLettered int
	Errors       int
}

type outcome int

const (
	succeeded outcome = iota + 1
	retried
	deadLettered
)

// New creates a queue over store
func New(store webhook.Store, deliverer webhook.Deliverer, br *breaker.Breaker, cfg Config, logger zerolog.Logger) *Queue {
	if br == nil {
		br = breaker.New(breaker.DefaultConfig())
	}
	return &Queue{
		store:     store,
		deliverer: deliverer,
		breaker:   br,
		cfg:       cfg.withDefaults(),
		logger:    logger.With().Str("component", "queue").Logger(),
	}
}

// Breaker exposes the circuit breaker for introspection
func (q *Queue) Breaker() *breaker.Breaker {
	return q.breaker
}

/* DeliverWebhook enqueues one item for wh, due now
 * Async returns as soon as the item is stored
 * Sync also attempts it in the caller's goroutine and returns the item as left by that attempt
 */
func (q *Queue) DeliverWebhook(ctx context.Context, wh webhook.Webhook, p payload.Payload, opts webhook.DeliverOptions) (webhook.QueueItem, error) {
	mode := opts.Mode
	if mode == 0 {
		mode = webhook.Async
	}
	if err := mode.Validate(); err != nil {
		return webhook.QueueItem{}, fmt.Errorf("validating delivery mode: %w", err)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.cfg.DefaultMaxRetries
	}

	id := opts.ItemID
	if id == "" {
		id = uuid.New().String()
	}

	now := q.cfg.Now()
	item, err := q.store.Enqueue(ctx, webhook.QueueItem{
		ID:           id,
		WebhookID:    wh.ID,
		Event:        p.Event,
		Payload:      p,
		Priority:     opts.Priority,
		ScheduledFor: now,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return webhook.QueueItem{}, fmt.Errorf("enqueueing item: %w", err)
	}

	if mode == webhook.Async {
		return item, nil
	}

	claimed, err := q.store.ClaimQueueItem(ctx, item.ID, q.cfg.ClaimLease)
	if err != nil {
		return item, fmt.Errorf("claiming item: %w", err)
	}
	if !claimed {
		// A runner pass got to it first
		return item, nil
	}

	item, _, err = q.process(ctx, item)
	if err != nil {
		return item, fmt.Errorf("processing item: %w", err)
	}
	return item, nil
}

// ProcessReady claims the due items and attempts them with bounded concurrency
func (q *Queue) ProcessReady(ctx context.Context) (PassResult, error) {
	items, err := q.store.ClaimReady(ctx, q.cfg.Now(), q.cfg.BatchSize, q.cfg.ClaimLease)
	if err != nil {
		return PassResult{}, fmt.Errorf("claiming ready items: %w", err)
	}

	result := PassResult{Claimed: len(items)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(q.cfg.Concurrency)

	for _, item := range items {
		g.Go(func() error {
			_, out, err := q.process(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors++
				q.logger.Error().Err(err).Str("item_id", item.ID).Msg("processing queue item")
				return nil
			}
			switch out {
			case succeeded:
				result.Succeeded++
			case retried:
				result.Retried++
			case deadLettered:
				result.DeadLettered++
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// process runs one attempt for a claimed item and settles it
func (q *Queue) process(ctx context.Context, item webhook.QueueItem) (webhook.QueueItem, outcome, error) {
	// In-flight attempts outlive the caller, only the executor timeout bounds them
	ctx = context.WithoutCancel(ctx)

	wh, found, err := q.store.GetWebhookByID(ctx, item.WebhookID)
	if err != nil {
		return item, 0, fmt.Errorf("getting webhook: %w", err)
	}

	var result webhook.DeliveryResult
	switch {
	case !found:
		result = webhook.DeliveryResult{ErrorMessage: reasonNotFound}
	case !wh.Active:
		result = webhook.DeliveryResult{ErrorMessage: reasonInactive}
	default:
		key := q.cfg.BreakerKey(wh, item)
		if err := q.breaker.Allow(key); err != nil {
			result = webhook.DeliveryResult{ErrorMessage: reasonCircuitOpen}
			break
		}
		result = q.deliverer.Deliver(ctx, wh, item)
		if result.Success {
			q.breaker.RecordSuccess(key)
		} else {
			q.breaker.RecordFailure(key)
		}
	}

	return q.settle(ctx, item, found, result)
}

func (q *Queue) settle(ctx context.Context, item webhook.QueueItem, found bool, result webhook.DeliveryResult) (webhook.QueueItem, outcome, error) {
	now := q.cfg.Now()

	status := webhook.Failed
	if result.Success {
		status = webhook.Success
	}
	if err := q.recordAttempt(ctx, item, webhook.Delivery{
		WebhookID:      item.WebhookID,
		QueueItemID:    item.ID,
		Event:          item.Event,
		Payload:        item.Payload,
		Status:         status,
		StatusCode:     result.StatusCode,
		ResponseBody:   result.ResponseBody,
		ErrorMessage:   result.ErrorMessage,
		AttemptCount:   item.RetryCount + 1,
		DurationMs:     result.DurationMs,
		IdempotencyKey: item.Payload.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return item, 0, err
	}

	if result.Success {
		if err := q.store.IncrementWebhookCounters(ctx, item.WebhookID, 1, 0); err != nil {
			return item, 0, fmt.Errorf("incrementing counters: %w", err)
		}
		if _, err := q.store.RemoveFromQueue(ctx, item.ID); err != nil {
			return item, 0, fmt.Errorf("removing item: %w", err)
		}
		q.logger.Debug().Str("item_id", item.ID).Str("webhook_id", item.WebhookID).Int("status_code", result.StatusCode).Msg("delivered")
		return item, succeeded, nil
	}

	if found {
		if err := q.store.IncrementWebhookCounters(ctx, item.WebhookID, 0, 1); err != nil {
			return item, 0, fmt.Errorf("incrementing counters: %w", err)
		}
	}

	item.RetryCount++
	item.LastError = result.ErrorMessage
	item.UpdatedAt = now

	if item.RetryCount < item.MaxRetries {
		item.ScheduledFor = now.Add(q.Backoff(item.RetryCount))
		if err := q.store.RescheduleQueueItem(ctx, item); err != nil {
			return item, 0, fmt.Errorf("rescheduling item: %w", err)
		}
		q.logger.Info().
			Str("item_id", item.ID).
			Str("webhook_id", item.WebhookID).
			Int("retry_count", item.RetryCount).
			Time("scheduled_for", item.ScheduledFor).
			Str("error", result.ErrorMessage).
			Msg("delivery failed, retry scheduled")
		return item, retried, nil
	}

	attempts, err := q.store.GetAllDeliveries(ctx, webhook.DeliveryFilter{
		QueueItemID: item.ID,
		Status:      webhook.Failed,
	})
	if err != nil {
		return item, 0, fmt.Errorf("loading attempts: %w", err)
	}
	// Stores return newest first, dead letters keep them oldest first
	slices.Reverse(attempts)

	reason := "max retries exceeded: " + result.ErrorMessage
	if _, err := q.store.MoveToDeadLetter(ctx, item, reason, attempts); err != nil {
		return item, 0, fmt.Errorf("moving to dead letter: %w", err)
	}
	q.logger.Warn().
		Str("item_id", item.ID).
		Str("webhook_id", item.WebhookID).
		Int("attempts", len(attempts)).
		Str("reason", reason).
		Msg("item moved to dead letter")
	return item, deadLettered, nil
}

/* recordAttempt writes the outcome of one attempt
 * The first attempt settles the pending record written at trigger time, later ones append
 */
func (q *Queue) recordAttempt(ctx context.Context, item webhook.QueueItem, d webhook.Delivery) error {
	if item.RetryCount == 0 {
		pending, err := q.store.GetAllDeliveries(ctx, webhook.DeliveryFilter{
			QueueItemID: item.ID,
			Status:      webhook.Pending,
			Limit:       1,
		})
		if err != nil {
			return fmt.Errorf("loading pending delivery: %w", err)
		}
		if len(pending) == 1 {
			d.ID = pending[0].ID
			d.CreatedAt = pending[0].CreatedAt
			updated, err := q.store.UpdateDelivery(ctx, d)
			if err != nil {
				return fmt.Errorf("settling pending delivery: %w", err)
			}
			if updated {
				return nil
			}
		}
	}

	if _, err := q.store.RecordDelivery(ctx, d); err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

/* Backoff returns the wait after the retryCount-th failure
 * BaseBackoff * 2^(retryCount-1) plus jitter, capped at MaxBackoff
 */
func (q *Queue) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := float64(q.cfg.BaseBackoff) * math.Pow(2, float64(retryCount-1))
	delay += q.cfg.Rand() * delay * q.cfg.Jitter
	if delay > float64(q.cfg.MaxBackoff) {
		return q.cfg.MaxBackoff
	}
	return time.Duration(delay)
}

// RetryDeadLetter re-enqueues a dead letter as a fresh item and removes the record
// The bool is false when id does not exist
func (q *Queue) RetryDeadLetter(ctx context.Context, id string) (webhook.QueueItem, bool, error) {
	dl, found, err := q.store.GetDeadLetter(ctx, id)
	if err != nil {
		return webhook.QueueItem{}, false, fmt.Errorf("getting dead letter: %w", err)
	}
	if !found {
		return webhook.QueueItem{}, false, nil
	}

	now := q.cfg.Now()
	item, err := q.store.Enqueue(ctx, webhook.QueueItem{
		ID:           uuid.New().String(),
		WebhookID:    dl.WebhookID,
		Event:        dl.Event,
		Payload:      dl.Payload,
		Priority:     dl.Priority,
		ScheduledFor: now,
		MaxRetries:   dl.MaxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return webhook.QueueItem{}, true, fmt.Errorf("enqueueing item: %w", err)
	}

	if _, err := q.store.RemoveFromDeadLetter(ctx, id); err != nil {
		return item, true, fmt.Errorf("removing dead letter: %w", err)
	}

	q.logger.Info().Str("dead_letter_id", id).Str("item_id", item.ID).Msg("dead letter re-enqueued")
	return item, true, nil
}

// Stats summarizes both queues
func (q *Queue) Stats(ctx context.Context) (webhook.QueueStats, error) {
	items, err := q.store.GetQueue(ctx)
	if err != nil {
		return webhook.QueueStats{}, fmt.Errorf("getting queue: %w", err)
	}
	dead, err := q.store.GetDeadLetterQueue(ctx)
	if err != nil {
		return webhook.QueueStats{}, fmt.Errorf("getting dead-letter queue: %w", err)
	}

	stats := webhook.QueueStats{Pending: len(items), DeadLetters: len(dead)}
	for _, item := range items {
		if stats.NextScheduled == nil || item.ScheduledFor.Before(*stats.NextScheduled) {
			next := item.ScheduledFor
			stats.NextScheduled = &next
		}
	}
	return stats, nil
}

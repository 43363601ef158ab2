package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/webhook/filter"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// DefaultIdempotencyTTL is how long a trigger key stays reserved
const DefaultIdempotencyTTL = 24 * time.Hour

// UseCase defines the business operations for webhook registration and dispatch
type UseCase interface {
	Register(ctx context.Context, wh Webhook) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, filter WebhookFilter) ([]Webhook, error)
	Update(ctx context.Context, id string, patch WebhookPatch) (Webhook, error)
	Delete(ctx context.Context, id string) error
	Trigger(ctx context.Context, event string, data json.RawMessage, opts TriggerOptions) (TriggerResult, error)
	Deliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error)
	Queue(ctx context.Context) (QueueSnapshot, error)
	RetryDeadLetter(ctx context.Context, id string) (QueueItem, error)
}

// TriggerOptions carries the optional trigger inputs
type TriggerOptions struct {
	IdempotencyKey string
	MaxRetries     int
	Priority       int
}

/* TriggerResult reports what one trigger call did
 * Duplicate is set when the idempotency key was already used, Existing then
 * references the most recent delivery for that key when there is one
 */
type TriggerResult struct {
	Triggered      int
	Queued         int
	IdempotencyKey string
	Duplicate      bool
	Existing       *Delivery
	QueueStats     QueueStats
}

type Service struct {
	Repo           Store
	Enqueuer       Enqueuer
	Filters        *filter.Evaluator
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// NewService creates a new webhook service with dependency injection
func NewService(repo Store, queue Enqueuer) *Service {
	return &Service{
		Repo:           repo,
		Enqueuer:       queue,
		Filters:        filter.NewEvaluator(),
		IdempotencyTTL: DefaultIdempotencyTTL,
		Now:            time.Now,
	}
}

// Register validates and stores a new webhook
// A secret is generated when the caller does not supply one
func (s *Service) Register(ctx context.Context, wh Webhook) (Webhook, error) {
	if wh.Secret == "" {
		secret, err := signature.GenerateSecret(32)
		if err != nil {
			return Webhook{}, fmt.Errorf("generating secret: %w", err)
		}
		wh.Secret = secret.String()
	} else if _, err := signature.ParseSecret(wh.Secret); err != nil {
		return Webhook{}, NewValidationError("secret", err.Error())
	}

	if err := wh.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}

	created, err := s.Repo.CreateWebhook(ctx, wh)
	if err != nil {
		return Webhook{}, fmt.Errorf("creating webhook: %w", err)
	}
	return created, nil
}

// Get returns a webhook or ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	wh, found, err := s.Repo.GetWebhookByID(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if !found {
		return Webhook{}, notFound("webhook", id)
	}
	return wh, nil
}

// List returns registrations matching filter
func (s *Service) List(ctx context.Context, filter WebhookFilter) ([]Webhook, error) {
	webhooks, err := s.Repo.GetAllWebhooks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return webhooks, nil
}

// Update applies a partial update, the result is re-validated by the store
func (s *Service) Update(ctx context.Context, id string, patch WebhookPatch) (Webhook, error) {
	if patch.Secret != nil {
		if _, err := signature.ParseSecret(*patch.Secret); err != nil {
			return Webhook{}, NewValidationError("secret", err.Error())
		}
	}

	wh, found, err := s.Repo.UpdateWebhook(ctx, id, patch)
	if err != nil {
		return Webhook{}, fmt.Errorf("updating webhook: %w", err)
	}
	if !found {
		return Webhook{}, notFound("webhook", id)
	}
	return wh, nil
}

// Delete removes a registration, queued items are left to fail on their own
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.Repo.DeleteWebhook(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if !deleted {
		return notFound("webhook", id)
	}
	return nil
}

/* Trigger turns one event into one queued delivery per subscribed webhook
 * The idempotency key is reserved before webhooks are resolved, so two
 * concurrent calls with the same key enqueue exactly once
 * A call that queues nothing rolls back its records and releases the key
 */
func (s *Service) Trigger(ctx context.Context, event string, data json.RawMessage, opts TriggerOptions) (TriggerResult, error) {
	if err := payload.ValidateEventName(event); err != nil {
		return TriggerResult{}, NewValidationError("event", err.Error())
	}
	if len(data) > 0 && !json.Valid(data) {
		return TriggerResult{}, NewValidationError("data", "data must be valid JSON")
	}

	now := s.now()
	key := opts.IdempotencyKey
	if key == "" {
		key = payload.NewIdempotencyKey(now)
	}
	result := TriggerResult{IdempotencyKey: key}

	existing, found, err := s.Repo.GetDeliveryByIdempotencyKey(ctx, key)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("looking up idempotency key: %w", err)
	}
	if found {
		return s.duplicate(ctx, result, &existing)
	}

	claimed, err := s.Repo.ClaimIdempotencyKey(ctx, key, s.IdempotencyTTL)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("claiming idempotency key: %w", err)
	}
	if !claimed {
		// Lost the race, the winner may not have recorded its deliveries yet
		existing, found, err := s.Repo.GetDeliveryByIdempotencyKey(ctx, key)
		if err != nil {
			return TriggerResult{}, fmt.Errorf("looking up idempotency key: %w", err)
		}
		if found {
			return s.duplicate(ctx, result, &existing)
		}
		return s.duplicate(ctx, result, nil)
	}

	recorded, err := s.dispatch(ctx, &result, event, data, key, opts, now)
	if err != nil {
		s.rollback(ctx, key, recorded)
		return result, err
	}

	stats, err := s.Enqueuer.Stats(ctx)
	if err != nil {
		return result, fmt.Errorf("getting queue stats: %w", err)
	}
	result.QueueStats = stats
	return result, nil
}

/* dispatch enqueues one item per matching webhook under a claimed key
 * The pending record is written before its item exists, so a runner pass can only
 * ever settle it, never race ahead of it
 * Records written for this call are returned for rollback
 */
func (s *Service) dispatch(ctx context.Context, result *TriggerResult, event string, data json.RawMessage, key string, opts TriggerOptions, now time.Time) ([]string, error) {
	webhooks, err := s.Repo.GetWebhooksByEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("resolving webhooks: %w", err)
	}

	p, err := payload.New(event, data, key, now)
	if err != nil {
		return nil, NewValidationError("payload", err.Error())
	}

	var recorded []string
	var errs []error
	for _, wh := range webhooks {
		matched, err := s.Filters.Match(wh.Filter, event, data)
		if err != nil || !matched {
			continue
		}
		result.Triggered++

		itemID := uuid.New().String()
		pending, err := s.Repo.RecordDelivery(ctx, Delivery{
			WebhookID:      wh.ID,
			QueueItemID:    itemID,
			Event:          event,
			Payload:        p,
			Status:         Pending,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("recording pending delivery for %s: %w", wh.ID, err))
			continue
		}
		recorded = append(recorded, pending.ID)

		_, err = s.Enqueuer.DeliverWebhook(ctx, wh, p, DeliverOptions{
			Mode:       Async,
			MaxRetries: opts.MaxRetries,
			Priority:   opts.Priority,
			ItemID:     itemID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", wh.ID, err))
			pending.Status = Failed
			pending.ErrorMessage = "enqueue failed: " + err.Error()
			pending.UpdatedAt = s.now()
			if _, err := s.Repo.UpdateDelivery(ctx, pending); err != nil {
				errs = append(errs, fmt.Errorf("marking delivery for %s: %w", wh.ID, err))
			}
			continue
		}
		result.Queued++
	}

	if result.Queued == 0 && len(errs) > 0 {
		return recorded, fmt.Errorf("enqueueing deliveries: %w", errors.Join(errs...))
	}
	return nil, nil
}

// rollback undoes a trigger that queued nothing so the caller can retry with the same key
func (s *Service) rollback(ctx context.Context, key string, deliveries []string) {
	for _, id := range deliveries {
		_, _ = s.Repo.DeleteDelivery(ctx, id)
	}
	_ = s.Repo.ReleaseIdempotencyKey(ctx, key)
}

func (s *Service) duplicate(ctx context.Context, result TriggerResult, existing *Delivery) (TriggerResult, error) {
	result.Duplicate = true
	result.Existing = existing

	stats, err := s.Enqueuer.Stats(ctx)
	if err != nil {
		return result, fmt.Errorf("getting queue stats: %w", err)
	}
	result.QueueStats = stats
	return result, nil
}

// Deliveries returns the delivery history matching filter, newest first
func (s *Service) Deliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error) {
	if filter.Limit < 0 {
		return nil, NewValidationError("limit", "limit must not be negative")
	}
	if filter.Status != 0 {
		if err := filter.Status.Validate(); err != nil {
			return nil, NewValidationError("status", err.Error())
		}
	}

	deliveries, err := s.Repo.GetAllDeliveries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return deliveries, nil
}

// Queue returns the live queue, the dead-letter queue and their stats
func (s *Service) Queue(ctx context.Context) (QueueSnapshot, error) {
	items, err := s.Repo.GetQueue(ctx)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("getting queue: %w", err)
	}
	dead, err := s.Repo.GetDeadLetterQueue(ctx)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("getting dead-letter queue: %w", err)
	}
	stats, err := s.Enqueuer.Stats(ctx)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("getting queue stats: %w", err)
	}
	return QueueSnapshot{Items: items, DeadLetters: dead, Stats: stats}, nil
}

// RetryDeadLetter moves a dead letter back to the live queue with a fresh retry budget
func (s *Service) RetryDeadLetter(ctx context.Context, id string) (QueueItem, error) {
	item, found, err := s.Enqueuer.RetryDeadLetter(ctx, id)
	if err != nil {
		return QueueItem{}, fmt.Errorf("retrying dead letter: %w", err)
	}
	if !found {
		return QueueItem{}, notFound("dead letter", id)
	}
	return item, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

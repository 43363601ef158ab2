package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/webhook"
)

// heartbeatTTL matches the Redis store: a runner silent for longer is inactive
const heartbeatTTL = 60 * time.Second

/* Store is the in-memory implementation of webhook.Store and apikey.Repository
 * One mutex guards every collection, values are copied in and out
 */
type Store struct {
	mu          sync.Mutex
	webhooks    map[string]webhook.Webhook
	deliveries  []webhook.Delivery
	queue       map[string]webhook.QueueItem
	claims      map[string]time.Time
	deadLetters map[string]webhook.DeadLetter
	idempotency map[string]time.Time
	apiKeys     map[string]apikey.APIKey
	heartbeats  map[string]webhook.WorkerHeartbeat

	Now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		webhooks:    make(map[string]webhook.Webhook),
		queue:       make(map[string]webhook.QueueItem),
		claims:      make(map[string]time.Time),
		deadLetters: make(map[string]webhook.DeadLetter),
		idempotency: make(map[string]time.Time),
		apiKeys:     make(map[string]apikey.APIKey),
		heartbeats:  make(map[string]webhook.WorkerHeartbeat),
		Now:         time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateWebhook stores a new registration
func (s *Store) CreateWebhook(ctx context.Context, wh webhook.Webhook) (webhook.Webhook, error) {
	if err := wh.Validate(); err != nil {
		return webhook.Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if wh.ID == "" {
		wh.ID = uuid.New().String()
	}
	if _, exists := s.webhooks[wh.ID]; exists {
		return webhook.Webhook{}, fmt.Errorf("webhook %s already exists", wh.ID)
	}
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	if wh.UpdatedAt.IsZero() {
		wh.UpdatedAt = wh.CreatedAt
	}
	wh.Events = slices.Clone(wh.Events)

	s.webhooks[wh.ID] = wh
	return cloneWebhook(wh), nil
}

// GetWebhookByID returns a registration by id
func (s *Store) GetWebhookByID(ctx context.Context, id string) (webhook.Webhook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return webhook.Webhook{}, false, nil
	}
	return cloneWebhook(wh), true, nil
}

// GetAllWebhooks returns the registrations matching filter, oldest first
func (s *Store) GetAllWebhooks(ctx context.Context, filter webhook.WebhookFilter) ([]webhook.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]webhook.Webhook, 0, len(s.webhooks))
	for _, wh := range s.webhooks {
		if filter.Matches(wh) {
			result = append(result, cloneWebhook(wh))
		}
	}
	sortWebhooks(result)
	return result, nil
}

// GetWebhooksByEvent returns the active registrations subscribed to event
func (s *Store) GetWebhooksByEvent(ctx context.Context, event string) ([]webhook.Webhook, error) {
	active := true
	return s.GetAllWebhooks(ctx, webhook.WebhookFilter{Active: &active, Event: event})
}

// UpdateWebhook applies patch and re-validates the result
func (s *Store) UpdateWebhook(ctx context.Context, id string, patch webhook.WebhookPatch) (webhook.Webhook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return webhook.Webhook{}, false, nil
	}

	updated := patch.Apply(wh)
	if err := updated.Validate(); err != nil {
		return webhook.Webhook{}, true, fmt.Errorf("validating webhook: %w", err)
	}
	updated.UpdatedAt = s.now()

	s.webhooks[id] = updated
	return cloneWebhook(updated), true, nil
}

// IncrementWebhookCounters adds to the running counters, a missing webhook is ignored
func (s *Store) IncrementWebhookCounters(ctx context.Context, id string, deliveries, failures int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wh, ok := s.webhooks[id]
	if !ok {
		return nil
	}
	wh.DeliveryCount += deliveries
	wh.FailureCount += failures
	wh.UpdatedAt = s.now()
	s.webhooks[id] = wh
	return nil
}

// DeleteWebhook removes a registration
func (s *Store) DeleteWebhook(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[id]; !ok {
		return false, nil
	}
	delete(s.webhooks, id)
	return true, nil
}

// RecordDelivery appends to the audit trail
func (s *Store) RecordDelivery(ctx context.Context, d webhook.Delivery) (webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	s.deliveries = append(s.deliveries, d)
	return d, nil
}

// UpdateDelivery replaces a recorded delivery, keeping its place in the trail
func (s *Store) UpdateDelivery(ctx context.Context, d webhook.Delivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.deliveries {
		if s.deliveries[i].ID != d.ID {
			continue
		}
		if d.UpdatedAt.IsZero() {
			d.UpdatedAt = s.now()
		}
		s.deliveries[i] = d
		return true, nil
	}
	return false, nil
}

// DeleteDelivery removes a delivery from the trail
func (s *Store) DeleteDelivery(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.deliveries {
		if s.deliveries[i].ID == id {
			s.deliveries = slices.Delete(s.deliveries, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

// GetAllDeliveries returns the deliveries matching filter, newest first
func (s *Store) GetAllDeliveries(ctx context.Context, filter webhook.DeliveryFilter) ([]webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []webhook.Delivery
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if !filter.Matches(d) {
			continue
		}
		result = append(result, d)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// GetDeliveryByIdempotencyKey returns the most recent delivery for key
func (s *Store) GetDeliveryByIdempotencyKey(ctx context.Context, key string) (webhook.Delivery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.deliveries) - 1; i >= 0; i-- {
		if s.deliveries[i].IdempotencyKey == key {
			return s.deliveries[i], true, nil
		}
	}
	return webhook.Delivery{}, false, nil
}

// ClaimIdempotencyKey reserves key until ttl elapses
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.idempotency[key]; ok && expires.After(now) {
		return false, nil
	}
	s.idempotency[key] = now.Add(ttl)
	return true, nil
}

// ReleaseIdempotencyKey frees key before its ttl elapses
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.idempotency, key)
	return nil
}

// GetQueue returns every live item in processing order
func (s *Store) GetQueue(ctx context.Context) ([]webhook.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]webhook.QueueItem, 0, len(s.queue))
	for _, item := range s.queue {
		items = append(items, item)
	}
	sortQueue(items)
	return items, nil
}

// Enqueue adds an item to the live queue
func (s *Store) Enqueue(ctx context.Context, item webhook.QueueItem) (webhook.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if _, exists := s.queue[item.ID]; exists {
		return webhook.QueueItem{}, fmt.Errorf("queue item %s already exists", item.ID)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}

	s.queue[item.ID] = item
	return item, nil
}

// DequeueReady returns the items due at now without claiming them
func (s *Store) DequeueReady(ctx context.Context, now time.Time) ([]webhook.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready(now, false), nil
}

// ClaimReady claims up to limit due items that nobody else holds
func (s *Store) ClaimReady(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]webhook.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.ready(now, true)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for _, item := range items {
		s.claims[item.ID] = now.Add(lease)
	}
	return items, nil
}

// ClaimQueueItem claims a single item by id
func (s *Store) ClaimQueueItem(ctx context.Context, id string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[id]; !ok {
		return false, nil
	}
	now := s.now()
	if s.claimed(id, now) {
		return false, nil
	}
	s.claims[id] = now.Add(lease)
	return true, nil
}

// RescheduleQueueItem stores the updated item and releases its claim
func (s *Store) RescheduleQueueItem(ctx context.Context, item webhook.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[item.ID]; !ok {
		return fmt.Errorf("queue item %s not found", item.ID)
	}
	s.queue[item.ID] = item
	delete(s.claims, item.ID)
	return nil
}

// RemoveFromQueue deletes a live item
func (s *Store) RemoveFromQueue(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, id)
	if _, ok := s.queue[id]; !ok {
		return false, nil
	}
	delete(s.queue, id)
	return true, nil
}

// GetDeadLetterQueue returns dead letters, oldest first
func (s *Store) GetDeadLetterQueue(ctx context.Context) ([]webhook.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]webhook.DeadLetter, 0, len(s.deadLetters))
	for _, dl := range s.deadLetters {
		result = append(result, cloneDeadLetter(dl))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetDeadLetter returns one dead letter by id
func (s *Store) GetDeadLetter(ctx context.Context, id string) (webhook.DeadLetter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dl, ok := s.deadLetters[id]
	if !ok {
		return webhook.DeadLetter{}, false, nil
	}
	return cloneDeadLetter(dl), true, nil
}

// MoveToDeadLetter removes item from the live queue and records it as dead, under one lock
func (s *Store) MoveToDeadLetter(ctx context.Context, item webhook.QueueItem, reason string, attempts []webhook.Delivery) (webhook.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dl := webhook.DeadLetter{
		ID:               uuid.New().String(),
		QueueItemID:      item.ID,
		WebhookID:        item.WebhookID,
		Event:            item.Event,
		Payload:          item.Payload,
		Priority:         item.Priority,
		MaxRetries:       item.MaxRetries,
		FailureReason:    reason,
		LastAttemptAt:    item.UpdatedAt,
		DeliveryAttempts: slices.Clone(attempts),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	delete(s.queue, item.ID)
	delete(s.claims, item.ID)
	s.deadLetters[dl.ID] = dl
	return cloneDeadLetter(dl), nil
}

// RemoveFromDeadLetter deletes a dead letter
func (s *Store) RemoveFromDeadLetter(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deadLetters[id]; !ok {
		return false, nil
	}
	delete(s.deadLetters, id)
	return true, nil
}

// SetWorkerHeartbeat records runner liveness
func (s *Store) SetWorkerHeartbeat(ctx context.Context, workerID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heartbeats[workerID] = webhook.WorkerHeartbeat{
		WorkerID:      workerID,
		Status:        status,
		LastHeartbeat: s.now(),
	}
	return nil
}

// GetActiveWorkers returns runners that sent a heartbeat within the last minute
func (s *Store) GetActiveWorkers(ctx context.Context) ([]webhook.WorkerHeartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-heartbeatTTL)
	var workers []webhook.WorkerHeartbeat
	for id, hb := range s.heartbeats {
		if hb.LastHeartbeat.Before(cutoff) {
			delete(s.heartbeats, id)
			continue
		}
		workers = append(workers, hb)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })
	return workers, nil
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// ready returns due items in processing order, optionally skipping live claims
// Callers hold s.mu
func (s *Store) ready(now time.Time, skipClaimed bool) []webhook.QueueItem {
	var items []webhook.QueueItem
	for _, item := range s.queue {
		if !item.Ready(now) {
			continue
		}
		if skipClaimed && s.claimed(item.ID, now) {
			continue
		}
		items = append(items, item)
	}
	sortQueue(items)
	return items
}

func (s *Store) claimed(id string, now time.Time) bool {
	expires, ok := s.claims[id]
	return ok && expires.After(now)
}

func sortQueue(items []webhook.QueueItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return a.ID < b.ID
	})
}

func sortWebhooks(webhooks []webhook.Webhook) {
	sort.Slice(webhooks, func(i, j int) bool {
		if !webhooks[i].CreatedAt.Equal(webhooks[j].CreatedAt) {
			return webhooks[i].CreatedAt.Before(webhooks[j].CreatedAt)
		}
		return webhooks[i].ID < webhooks[j].ID
	})
}

func cloneWebhook(wh webhook.Webhook) webhook.Webhook {
	wh.Events = slices.Clone(wh.Events)
	return wh
}

func cloneDeadLetter(dl webhook.DeadLetter) webhook.DeadLetter {
	dl.DeliveryAttempts = slices.Clone(dl.DeliveryAttempts)
	return dl
}

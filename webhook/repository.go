package webhook

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook/payload"
)

/* Small, focused interfaces composed into Store
 * Lookups report a miss through the found flag, never through the error
 * The error is reserved for storage failures and validation
 */

// WebhookReader provides read operations for registrations
type WebhookReader interface {
	GetWebhookByID(ctx context.Context, id string) (Webhook, bool, error)
	// GetAllWebhooks returns registrations ordered by CreatedAt
	GetAllWebhooks(ctx context.Context, filter WebhookFilter) ([]Webhook, error)
	/* GetWebhooksByEvent returns only active webhooks subscribed to event
	 * directly, through "*" or through a "prefix.*" subscription
	 */
	GetWebhooksByEvent(ctx context.Context, event string) ([]Webhook, error)
}

// WebhookWriter provides write operations for registrations
type WebhookWriter interface {
	// CreateWebhook assigns ID and timestamps when empty and validates
	CreateWebhook(ctx context.Context, wh Webhook) (Webhook, error)
	UpdateWebhook(ctx context.Context, id string, patch WebhookPatch) (Webhook, bool, error)
	IncrementWebhookCounters(ctx context.Context, id string, deliveries, failures int) error
	// DeleteWebhook leaves queued items alone, they fail on their next attempt
	DeleteWebhook(ctx context.Context, id string) (bool, error)
}

// DeliveryRecorder keeps the delivery audit trail
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d Delivery) (Delivery, error)
	// UpdateDelivery overwrites a recorded delivery in place, false if id is unknown
	UpdateDelivery(ctx context.Context, d Delivery) (bool, error)
	// DeleteDelivery drops a record and its index entries
	DeleteDelivery(ctx context.Context, id string) (bool, error)
	// GetAllDeliveries returns newest first
	GetAllDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error)
	// GetDeliveryByIdempotencyKey returns the most recent delivery carrying key
	GetDeliveryByIdempotencyKey(ctx context.Context, key string) (Delivery, bool, error)
}

// IdempotencyStore reserves trigger keys
type IdempotencyStore interface {
	/* ClaimIdempotencyKey atomically reserves key for ttl
	 * Exactly one of several concurrent callers gets true
	 */
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// QueueStore owns the live queue
type QueueStore interface {
	GetQueue(ctx context.Context) ([]QueueItem, error)
	Enqueue(ctx context.Context, item QueueItem) (QueueItem, error)
	// DequeueReady is read-only: items due at now, priority desc then ScheduledFor asc
	DequeueReady(ctx context.Context, now time.Time) ([]QueueItem, error)
	/* ClaimReady returns up to limit due items in DequeueReady order that are not
	 * under a live claim and claims them for lease
	 * A claimed item is invisible to other ClaimReady callers until released or expired
	 * Returned items are read after the claim is held, never from an earlier snapshot
	 */
	ClaimReady(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]QueueItem, error)
	// ClaimQueueItem claims one item by id, false if missing or already claimed
	ClaimQueueItem(ctx context.Context, id string, lease time.Duration) (bool, error)
	// RescheduleQueueItem persists item and releases its claim
	RescheduleQueueItem(ctx context.Context, item QueueItem) error
	// RemoveFromQueue deletes the item and releases its claim
	RemoveFromQueue(ctx context.Context, id string) (bool, error)
}

// DeadLetterStore owns the dead-letter queue
type DeadLetterStore interface {
	GetDeadLetterQueue(ctx context.Context) ([]DeadLetter, error)
	GetDeadLetter(ctx context.Context, id string) (DeadLetter, bool, error)
	// MoveToDeadLetter removes item from the live queue and inserts the record atomically
	MoveToDeadLetter(ctx context.Context, item QueueItem, reason string, attempts []Delivery) (DeadLetter, error)
	RemoveFromDeadLetter(ctx context.Context, id string) (bool, error)
}

/* Store is the single source of truth for registrations, deliveries and both queues
 * Interface composition - combining small interfaces into larger ones
 */
type Store interface {
	WebhookReader
	WebhookWriter
	DeliveryRecorder
	IdempotencyStore
	QueueStore
	DeadLetterStore
	Close(ctx context.Context) error
}

// HeartbeatStore is implemented by stores that track runner liveness
type HeartbeatStore interface {
	SetWorkerHeartbeat(ctx context.Context, workerID, status string) error
	GetActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error)
}

// Deliverer performs exactly one HTTP attempt, it never retries
type Deliverer interface {
	Deliver(ctx context.Context, wh Webhook, item QueueItem) DeliveryResult
}

// Enqueuer is the queue surface the service depends on
type Enqueuer interface {
	DeliverWebhook(ctx context.Context, wh Webhook, p payload.Payload, opts DeliverOptions) (QueueItem, error)
	RetryDeadLetter(ctx context.Context, id string) (QueueItem, bool, error)
	Stats(ctx context.Context) (QueueStats, error)
}

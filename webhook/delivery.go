package webhook

import (
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook/payload"
)

/* QueueItem is one scheduled delivery attempt for a (webhook, payload) pair
 * RetryCount never exceeds MaxRetries while the item is in the live queue
 */
type QueueItem struct {
	ID           string
	WebhookID    string
	Event        string
	Payload      payload.Payload
	Priority     int
	ScheduledFor time.Time
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ready reports whether the item may run at now
func (q QueueItem) Ready(now time.Time) bool {
	return !q.ScheduledFor.After(now)
}

// Delivery is the audit record of one delivery outcome
type Delivery struct {
	ID             string
	WebhookID      string
	QueueItemID    string
	Event          string
	Payload        payload.Payload
	Status         DeliveryStatus
	StatusCode     int
	ResponseBody   string
	ErrorMessage   string
	AttemptCount   int
	DurationMs     int64
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryFilter narrows GetAllDeliveries, zero values match everything
type DeliveryFilter struct {
	WebhookID   string
	QueueItemID string
	Status      DeliveryStatus
	Limit       int
}

// Matches reports whether d passes the filter, Limit is applied by the store
func (f DeliveryFilter) Matches(d Delivery) bool {
	if f.WebhookID != "" && d.WebhookID != f.WebhookID {
		return false
	}
	if f.QueueItemID != "" && d.QueueItemID != f.QueueItemID {
		return false
	}
	if f.Status != 0 && d.Status != f.Status {
		return false
	}
	return true
}

/* DeadLetter is the terminal record of a queue item that exhausted its retries
 * DeliveryAttempts holds the failed deliveries of the item, oldest first
 */
type DeadLetter struct {
	ID               string
	QueueItemID      string
	WebhookID        string
	Event            string
	Payload          payload.Payload
	Priority         int
	MaxRetries       int
	FailureReason    string
	LastAttemptAt    time.Time
	DeliveryAttempts []Delivery
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DeliveryResult is the outcome of a single HTTP attempt
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	ErrorMessage string
	DurationMs   int64
}

// QueueStats summarizes the live and dead-letter queues
type QueueStats struct {
	Pending       int
	NextScheduled *time.Time
	DeadLetters   int
}

// QueueSnapshot is the introspection view of both queues
type QueueSnapshot struct {
	Items       []QueueItem
	DeadLetters []DeadLetter
	Stats       QueueStats
}

// WorkerHeartbeat is the liveness record a queue runner writes every pass
type WorkerHeartbeat struct {
	WorkerID      string
	Status        string
	LastHeartbeat time.Time
}

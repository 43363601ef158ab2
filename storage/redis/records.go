package redis

import (
	"strconv"
	"time"

	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
)

// Records are the JSON shapes persisted in Redis, kept apart from the domain types

type deliveryRecord struct {
	ID             string          `json:"id"`
	WebhookID      string          `json:"webhook_id"`
	QueueItemID    string          `json:"queue_item_id,omitempty"`
	Event          string          `json:"event"`
	Payload        payload.Payload `json:"payload"`
	Status         string          `json:"status"`
	StatusCode     int             `json:"status_code,omitempty"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	AttemptCount   int             `json:"attempt_count"`
	DurationMs     int64           `json:"duration_ms"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDeliveryRecord(d webhook.Delivery) deliveryRecord {
	return deliveryRecord{
		ID:             d.ID,
		WebhookID:      d.WebhookID,
		QueueItemID:    d.QueueItemID,
		Event:          d.Event,
		Payload:        d.Payload,
		Status:         d.Status.String(),
		StatusCode:     d.StatusCode,
		ResponseBody:   d.ResponseBody,
		ErrorMessage:   d.ErrorMessage,
		AttemptCount:   d.AttemptCount,
		DurationMs:     d.DurationMs,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (r deliveryRecord) delivery() webhook.Delivery {
	return webhook.Delivery{
		ID:             r.ID,
		WebhookID:      r.WebhookID,
		QueueItemID:    r.QueueItemID,
		Event:          r.Event,
		Payload:        r.Payload,
		Status:         webhook.NewDeliveryStatus(r.Status),
		StatusCode:     r.StatusCode,
		ResponseBody:   r.ResponseBody,
		ErrorMessage:   r.ErrorMessage,
		AttemptCount:   r.AttemptCount,
		DurationMs:     r.DurationMs,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type queueItemRecord struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	Event        string          `json:"event"`
	Payload      payload.Payload `json:"payload"`
	Priority     int             `json:"priority"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toQueueItemRecord(item webhook.QueueItem) queueItemRecord {
	return queueItemRecord(item)
}

func (r queueItemRecord) item() webhook.QueueItem {
	return webhook.QueueItem(r)
}

type deadLetterRecord struct {
	ID               string           `json:"id"`
	QueueItemID      string           `json:"queue_item_id"`
	WebhookID        string           `json:"webhook_id"`
	Event            string           `json:"event"`
	Payload          payload.Payload  `json:"payload"`
	Priority         int              `json:"priority"`
	MaxRetries       int              `json:"max_retries"`
	FailureReason    string           `json:"failure_reason"`
	LastAttemptAt    time.Time        `json:"last_attempt_at"`
	DeliveryAttempts []deliveryRecord `json:"delivery_attempts"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func toDeadLetterRecord(dl webhook.DeadLetter) deadLetterRecord {
	attempts := make([]deliveryRecord, len(dl.DeliveryAttempts))
	for i, d := range dl.DeliveryAttempts {
		attempts[i] = toDeliveryRecord(d)
	}
	return deadLetterRecord{
		ID:               dl.ID,
		QueueItemID:      dl.QueueItemID,
		WebhookID:        dl.WebhookID,
		Event:            dl.Event,
		Payload:          dl.Payload,
		Priority:         dl.Priority,
		MaxRetries:       dl.MaxRetries,
		FailureReason:    dl.FailureReason,
		LastAttemptAt:    dl.LastAttemptAt,
		DeliveryAttempts: attempts,
		CreatedAt:        dl.CreatedAt,
		UpdatedAt:        dl.UpdatedAt,
	}
}

func (r deadLetterRecord) deadLetter() webhook.DeadLetter {
	attempts := make([]webhook.Delivery, len(r.DeliveryAttempts))
	for i, d := range r.DeliveryAttempts {
		attempts[i] = d.delivery()
	}
	return webhook.DeadLetter{
		ID:               r.ID,
		QueueItemID:      r.QueueItemID,
		WebhookID:        r.WebhookID,
		Event:            r.Event,
		Payload:          r.Payload,
		Priority:         r.Priority,
		MaxRetries:       r.MaxRetries,
		FailureReason:    r.FailureReason,
		LastAttemptAt:    r.LastAttemptAt,
		DeliveryAttempts: attempts,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type apiKeyRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"key_hash"`
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toAPIKeyRecord(k apikey.APIKey) apiKeyRecord {
	return apiKeyRecord(k)
}

func (r apiKeyRecord) apiKey() apikey.APIKey {
	return apikey.APIKey(r)
}

// score orders sorted sets by time with millisecond resolution
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreString(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

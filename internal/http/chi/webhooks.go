package chi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
)

/* HTTP layer DTOs for the webhook API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookRequest is the body of POST /webhooks
type webhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
	Secret string   `json:"secret"`
	Filter string   `json:"filter"`
}

// webhookPatchRequest is the body of PUT /webhooks/{id}, absent fields are kept
type webhookPatchRequest struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
	Secret *string  `json:"secret"`
	Filter *string  `json:"filter"`
}

/* webhookResponse represents a registration in the API
 * Secret is only set in the creation response
 */
type webhookResponse struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Events        []string  `json:"events"`
	Active        bool      `json:"active"`
	Secret        string    `json:"secret,omitempty"`
	Filter        string    `json:"filter,omitempty"`
	DeliveryCount int       `json:"deliveryCount"`
	FailureCount  int       `json:"failureCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type triggerRequest struct {
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data"`
	IdempotencyKey string          `json:"idempotencyKey"`
	MaxRetries     int             `json:"maxRetries"`
	Priority       int             `json:"priority"`
}

type triggerResponse struct {
	Triggered      int                `json:"triggered"`
	Queued         int                `json:"queued"`
	IdempotencyKey string             `json:"idempotencyKey"`
	Duplicate      bool               `json:"duplicate"`
	Existing       *deliveryResponse  `json:"existingDelivery,omitempty"`
	QueueStats     queueStatsResponse `json:"queueStats"`
}

type queueStatsResponse struct {
	Pending       int        `json:"pending"`
	NextScheduled *time.Time `json:"nextScheduled,omitempty"`
	DeadLetters   int        `json:"deadLetters"`
}

type deliveryResponse struct {
	ID             string          `json:"id"`
	WebhookID      string          `json:"webhookId"`
	QueueItemID    string          `json:"queueItemId,omitempty"`
	Event          string          `json:"event"`
	Payload        payload.Payload `json:"payload"`
	Status         string          `json:"status"`
	StatusCode     int             `json:"statusCode,omitempty"`
	ResponseBody   string          `json:"responseBody,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	AttemptCount   int             `json:"attemptCount"`
	DurationMs     int64           `json:"durationMs"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type queueItemResponse struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhookId"`
	Event        string    `json:"event"`
	Priority     int       `json:"priority"`
	ScheduledFor time.Time `json:"scheduledFor"`
	RetryCount   int       `json:"retryCount"`
	MaxRetries   int       `json:"maxRetries"`
	LastError    string    `json:"lastError,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type deadLetterResponse struct {
	ID               string             `json:"id"`
	QueueItemID      string             `json:"queueItemId"`
	WebhookID        string             `json:"webhookId"`
	Event            string             `json:"event"`
	FailureReason    string             `json:"failureReason"`
	LastAttemptAt    time.Time          `json:"lastAttemptAt"`
	DeliveryAttempts []deliveryResponse `json:"deliveryAttempts"`
	CreatedAt        time.Time          `json:"createdAt"`
}

type queueResponse struct {
	Items       []queueItemResponse  `json:"items"`
	DeadLetters []deadLetterResponse `json:"deadLetters"`
	Stats       queueStatsResponse   `json:"stats"`
}

type breakerResponse struct {
	Key         string     `json:"key"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	Opens       int        `json:"opens"`
	OpenedAt    *time.Time `json:"openedAt,omitempty"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
}

func newWebhookResponse(wh webhook.Webhook) webhookResponse {
	return webhookResponse{
		ID:            wh.ID,
		URL:           wh.URL,
		Events:        wh.Events,
		Active:        wh.Active,
		Filter:        wh.Filter,
		DeliveryCount: wh.DeliveryCount,
		FailureCount:  wh.FailureCount,
		CreatedAt:     wh.CreatedAt,
		UpdatedAt:     wh.UpdatedAt,
	}
}

func newDeliveryResponse(d webhook.Delivery) deliveryResponse {
	return deliveryResponse{
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
	}
}

func newQueueItemResponse(item webhook.QueueItem) queueItemResponse {
	return queueItemResponse{
		ID:           item.ID,
		WebhookID:    item.WebhookID,
		Event:        item.Event,
		Priority:     item.Priority,
		ScheduledFor: item.ScheduledFor,
		RetryCount:   item.RetryCount,
		MaxRetries:   item.MaxRetries,
		LastError:    item.LastError,
		CreatedAt:    item.CreatedAt,
	}
}

func newQueueStatsResponse(s webhook.QueueStats) queueStatsResponse {
	return queueStatsResponse{
		Pending:       s.Pending,
		NextScheduled: s.NextScheduled,
		DeadLetters:   s.DeadLetters,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// createWebhook handles POST /webhooks
func createWebhook(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		wh, err := svc.Register(r.Context(), webhook.Webhook{
			URL:    req.URL,
			Events: req.Events,
			Active: active,
			Secret: req.Secret,
			Filter: req.Filter,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := newWebhookResponse(wh)
		resp.Secret = wh.Secret
		writeJSON(w, http.StatusCreated, resp)
	})
}

// listWebhooks handles GET /webhooks?active=&event=
func listWebhooks(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var filter webhook.WebhookFilter
		if raw := r.URL.Query().Get("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, r, webhook.NewValidationError("active", "active must be true or false"))
				return
			}
			filter.Active = &active
		}
		filter.Event = r.URL.Query().Get("event")

		webhooks, err := svc.List(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := make([]webhookResponse, 0, len(webhooks))
		for _, wh := range webhooks {
			resp = append(resp, newWebhookResponse(wh))
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// getWebhook handles GET /webhooks/{id}
func getWebhook(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newWebhookResponse(wh))
	})
}

// updateWebhook handles PUT /webhooks/{id}
func updateWebhook(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookPatchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		wh, err := svc.Update(r.Context(), chi.URLParam(r, "id"), webhook.WebhookPatch{
			URL:    req.URL,
			Events: req.Events,
			Active: req.Active,
			Secret: req.Secret,
			Filter: req.Filter,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newWebhookResponse(wh))
	})
}

// deleteWebhook handles DELETE /webhooks/{id}
func deleteWebhook(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	})
}

/* triggerWebhooks handles POST /webhooks/trigger
 * 202 means the deliveries were queued, not delivered
 * An Idempotency-Key header is used when the body carries no key
 */
func triggerWebhooks(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		key := req.IdempotencyKey
		if key == "" {
			key = r.Header.Get("Idempotency-Key")
		}

		result, err := svc.Trigger(r.Context(), req.Event, req.Data, webhook.TriggerOptions{
			IdempotencyKey: key,
			MaxRetries:     req.MaxRetries,
			Priority:       req.Priority,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := triggerResponse{
			Triggered:      result.Triggered,
			Queued:         result.Queued,
			IdempotencyKey: result.IdempotencyKey,
			Duplicate:      result.Duplicate,
			QueueStats:     newQueueStatsResponse(result.QueueStats),
		}
		if result.Existing != nil {
			existing := newDeliveryResponse(*result.Existing)
			resp.Existing = &existing
		}
		writeJSON(w, http.StatusAccepted, resp)
	})
}

// getQueue handles GET /webhooks/queue
func getQueue(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := svc.Queue(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := queueResponse{
			Items:       make([]queueItemResponse, 0, len(snapshot.Items)),
			DeadLetters: make([]deadLetterResponse, 0, len(snapshot.DeadLetters)),
			Stats:       newQueueStatsResponse(snapshot.Stats),
		}
		for _, item := range snapshot.Items {
			resp.Items = append(resp.Items, newQueueItemResponse(item))
		}
		for _, dl := range snapshot.DeadLetters {
			attempts := make([]deliveryResponse, 0, len(dl.DeliveryAttempts))
			for _, d := range dl.DeliveryAttempts {
				attempts = append(attempts, newDeliveryResponse(d))
			}
			resp.DeadLetters = append(resp.DeadLetters, deadLetterResponse{
				ID:               dl.ID,
				QueueItemID:      dl.QueueItemID,
				WebhookID:        dl.WebhookID,
				Event:            dl.Event,
				FailureReason:    dl.FailureReason,
				LastAttemptAt:    dl.LastAttemptAt,
				DeliveryAttempts: attempts,
				CreatedAt:        dl.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// retryDeadLetter handles POST /webhooks/dead-letter/{id}/retry
func retryDeadLetter(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.RetryDeadLetter(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newQueueItemResponse(item))
	})
}

// listDeliveries handles GET /webhooks/deliveries?webhookId=&status=&limit=
func listDeliveries(svc webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := webhook.DeliveryFilter{WebhookID: q.Get("webhookId")}
		if raw := q.Get("status"); raw != "" {
			filter.Status = webhook.NewDeliveryStatus(raw)
			if filter.Status == 0 {
				writeError(w, r, webhook.NewValidationError("status", "status must be pending, success or failed"))
				return
			}
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, webhook.NewValidationError("limit", "limit must be a number"))
				return
			}
			filter.Limit = limit
		}

		deliveries, err := svc.Deliveries(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := make([]deliveryResponse, 0, len(deliveries))
		for _, d := range deliveries {
			resp = append(resp, newDeliveryResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// listBreakers handles GET /webhooks/breakers
func listBreakers(br *breaker.Breaker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := []breakerResponse{}
		if br != nil {
			for _, s := range br.AllStats() {
				resp = append(resp, breakerResponse{
					Key:         s.Key,
					State:       s.State.String(),
					Failures:    s.Failures,
					Opens:       s.Opens,
					OpenedAt:    optionalTime(s.OpenedAt),
					NextRetryAt: optionalTime(s.NextRetryAt),
				})
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
)

const (
	// DefaultTimeout bounds a single attempt
	DefaultTimeout = 10 * time.Second

	// MaxResponseBody is how much of the destination's response is kept
	MaxResponseBody = 64 * 1024

	HeaderEvent          = "X-Webhook-Event"
	HeaderIdempotencyKey = "X-Idempotency-Key"
	UserAgent            = "webhook-dispatch/1.0"
)

/* Executor performs exactly one signed HTTP POST per call
 * Retry policy belongs to the queue, the executor never retries
 */
type Executor struct {
	Client  *http.Client
	Timeout time.Duration
	Now     func() time.Time
}

// New creates an executor with its own HTTP client
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		Client:  &http.Client{},
		Timeout: timeout,
		Now:     time.Now,
	}
}

// Deliver posts item's payload to wh.URL and interprets the response
// Any 2xx is success, other statuses, transport errors and timeouts are failures
func (e *Executor) Deliver(ctx context.Context, wh webhook.Webhook, item webhook.QueueItem) webhook.DeliveryResult {
	start := e.now()

	result := e.deliver(ctx, wh, item)
	result.DurationMs = e.now().Sub(start).Milliseconds()
	return result
}

func (e *Executor) deliver(ctx context.Context, wh webhook.Webhook, item webhook.QueueItem) webhook.DeliveryResult {
	body, err := item.Payload.Bytes()
	if err != nil {
		return failure(0, fmt.Sprintf("serializing payload: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return failure(0, fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, item.Event)
	req.Header.Set(HeaderIdempotencyKey, item.Payload.IdempotencyKey)

	secret, err := signature.ParseSecret(wh.Secret)
	if err != nil {
		return failure(0, fmt.Sprintf("parsing secret: %v", err))
	}
	// The queue item id is stable across retries, so receivers can dedupe on webhook-id
	if err := signature.SetHeaders(req.Header, secret, item.ID, e.now(), body); err != nil {
		return failure(0, fmt.Sprintf("signing payload: %v", err))
	}

	resp, err := e.client().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failure(0, fmt.Sprintf("request timed out after %s", e.Timeout))
		}
		return failure(0, fmt.Sprintf("sending request: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return failure(resp.StatusCode, fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := failure(resp.StatusCode, fmt.Sprintf("unexpected status code %d", resp.StatusCode))
		res.ResponseBody = string(respBody)
		return res
	}

	return webhook.DeliveryResult{
		Success:      true,
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
	}
}

func failure(status int, msg string) webhook.DeliveryResult {
	return webhook.DeliveryResult{
		StatusCode:   status,
		ErrorMessage: msg,
	}
}

func (e *Executor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

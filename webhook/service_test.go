package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatch/storage/memory"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
	"github.com/marcelsud/webhook-dispatch/webhook/executor"
	"github.com/marcelsud/webhook-dispatch/webhook/mocks"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/marcelsud/webhook-dispatch/webhook/queue"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newQueuedService(t *testing.T, deliverer webhook.Deliverer, now func() time.Time) (*webhook.Service, *memory.Store, *queue.Queue) {
	t.Helper()
	store := memory.NewStore()
	store.Now = now
	q := queue.New(store, deliverer, breaker.New(breaker.Config{Now: now}), queue.Config{
		Now:  now,
		Rand: func() float64 { return 0 },
	}, zerolog.Nop())
	svc := webhook.NewService(store, q)
	svc.Now = now
	return svc, store, q
}

func fixedNow() time.Time { return testNow }

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("success - generates a secret", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)

		wh, err := svc.Register(ctx, webhook.Webhook{
			URL:    "https://example.com/hooks",
			Events: []string{"user.created"},
			Active: true,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, wh.ID)
		_, err = signature.ParseSecret(wh.Secret)
		require.NoError(t, err)
		assert.Contains(t, wh.Secret, signature.SecretPrefix)

		got, err := svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, wh.URL, got.URL)
	})

	t.Run("success - keeps a caller secret", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)

		wh, err := svc.Register(ctx, webhook.Webhook{
			URL:    "https://example.com/hooks",
			Events: []string{"*"},
			Secret: "my-shared-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "my-shared-secret", wh.Secret)
	})

	cases := []struct {
		name  string
		wh    webhook.Webhook
		field string
	}{
		{"error - missing url", webhook.Webhook{Events: []string{"a.b"}}, "url"},
		{"error - ftp url", webhook.Webhook{URL: "ftp://example.com", Events: []string{"a.b"}}, "url"},
		{"error - no events", webhook.Webhook{URL: "https://example.com"}, "events"},
		{"error - bad event", webhook.Webhook{URL: "https://example.com", Events: []string{"bad event"}}, "events"},
		{"error - bad filter", webhook.Webhook{URL: "https://example.com", Events: []string{"a.b"}, Filter: "data.amount >"}, "filter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)

			_, err := svc.Register(ctx, tc.wh)
			require.Error(t, err)
			var verr *webhook.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)

			category, code := webhook.Classify(err)
			assert.Equal(t, webhook.CategoryValidation, category)
			assert.Equal(t, "VALIDATION_ERROR", code)
		})
	}
}

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)

	wh, err := svc.Register(ctx, webhook.Webhook{
		URL:    "https://example.com/a",
		Events: []string{"order.*"},
		Active: true,
	})
	require.NoError(t, err)

	t.Run("success - update", func(t *testing.T) {
		url := "https://example.com/b"
		inactive := false
		updated, err := svc.Update(ctx, wh.ID, webhook.WebhookPatch{URL: &url, Active: &inactive})
		require.NoError(t, err)
		assert.Equal(t, url, updated.URL)
		assert.False(t, updated.Active)
		assert.Equal(t, []string{"order.*"}, updated.Events)
	})

	t.Run("error - update with invalid url keeps the record", func(t *testing.T) {
		url := "not a url"
		_, err := svc.Update(ctx, wh.ID, webhook.WebhookPatch{URL: &url})
		var verr *webhook.ValidationError
		require.ErrorAs(t, err, &verr)

		got, err := svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/b", got.URL)
	})

	t.Run("success - list by active flag", func(t *testing.T) {
		active := true
		list, err := svc.List(ctx, webhook.WebhookFilter{Active: &active})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = svc.List(ctx, webhook.WebhookFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("success - delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, wh.ID))
	})

	t.Run("error - not found after delete", func(t *testing.T) {
		_, err := svc.Get(ctx, wh.ID)
		assert.ErrorIs(t, err, webhook.ErrNotFound)

		err = svc.Delete(ctx, wh.ID)
		assert.ErrorIs(t, err, webhook.ErrNotFound)

		url := "https://example.com/c"
		_, err = svc.Update(ctx, wh.ID, webhook.WebhookPatch{URL: &url})
		assert.ErrorIs(t, err, webhook.ErrNotFound)

		category, code := webhook.Classify(err)
		assert.Equal(t, webhook.CategoryNotFound, category)
		assert.Equal(t, "NOT_FOUND", code)
	})
}

func TestServiceTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("success - queues one item per matching webhook", func(t *testing.T) {
		svc, store, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		for _, events := range [][]string{{"user.created"}, {"user.*"}, {"order.created"}} {
			_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: events, Active: true})
			require.NoError(t, err)
		}
		_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: []string{"*"}, Active: false})
		require.NoError(t, err)

		res, err := svc.Trigger(ctx, "user.created", json.RawMessage(`{"id":"u1"}`), webhook.TriggerOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Triggered)
		assert.Equal(t, 2, res.Queued)
		assert.False(t, res.Duplicate)
		assert.Regexp(t, `^evt_\d+_[0-9a-z]+$`, res.IdempotencyKey)
		assert.Equal(t, 2, res.QueueStats.Pending)

		pending, err := store.GetAllDeliveries(ctx, webhook.DeliveryFilter{Status: webhook.Pending})
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		for _, d := range pending {
			assert.Equal(t, res.IdempotencyKey, d.IdempotencyKey)
			assert.NotEmpty(t, d.QueueItemID)
		}
	})

	t.Run("success - same key twice enqueues once", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: []string{"user.created"}, Active: true})
		require.NoError(t, err)

		first, err := svc.Trigger(ctx, "user.created", json.RawMessage(`{}`), webhook.TriggerOptions{IdempotencyKey: "abc"})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Queued)

		second, err := svc.Trigger(ctx, "user.created", json.RawMessage(`{}`), webhook.TriggerOptions{IdempotencyKey: "abc"})
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.Equal(t, 0, second.Queued)
		assert.Equal(t, "abc", second.IdempotencyKey)
		require.NotNil(t, second.Existing)
		assert.Equal(t, "abc", second.Existing.IdempotencyKey)
		assert.Equal(t, 1, second.QueueStats.Pending)
	})

	t.Run("success - concurrent triggers with one key enqueue once", func(t *testing.T) {
		svc, store, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: []string{"user.created"}, Active: true})
		require.NoError(t, err)

		var queued atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.Trigger(ctx, "user.created", nil, webhook.TriggerOptions{IdempotencyKey: "race"})
				assert.NoError(t, err)
				queued.Add(int32(res.Queued))
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), queued.Load())
		items, err := store.GetQueue(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("success - filter skips non-matching webhooks", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		_, err := svc.Register(ctx, webhook.Webhook{
			URL:    "https://example.com",
			Events: []string{"payment.*"},
			Active: true,
			Filter: "data.amount > 100",
		})
		require.NoError(t, err)

		res, err := svc.Trigger(ctx, "payment.received", json.RawMessage(`{"amount":50}`), webhook.TriggerOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Triggered)

		res, err = svc.Trigger(ctx, "payment.received", json.RawMessage(`{"amount":500}`), webhook.TriggerOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Queued)
	})

	t.Run("success - no subscribers", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		res, err := svc.Trigger(ctx, "nobody.cares", nil, webhook.TriggerOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Triggered)
		assert.Equal(t, 0, res.Queued)
	})

	t.Run("error - invalid event", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		_, err := svc.Trigger(ctx, "", nil, webhook.TriggerOptions{})
		var verr *webhook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "event", verr.Field)
	})

	t.Run("error - invalid data", func(t *testing.T) {
		svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)
		_, err := svc.Trigger(ctx, "user.created", json.RawMessage(`{nope`), webhook.TriggerOptions{})
		var verr *webhook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "data", verr.Field)
	})

	t.Run("success - the pending record settles after a pass", func(t *testing.T) {
		d := mocks.NewDeliverer(t)
		d.On("Deliver", mock.Anything, mock.Anything, mock.Anything).
			Return(webhook.DeliveryResult{Success: true, StatusCode: 200})
		svc, store, q := newQueuedService(t, d, fixedNow)
		_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: []string{"user.created"}, Active: true})
		require.NoError(t, err)

		_, err = svc.Trigger(ctx, "user.created", json.RawMessage(`{}`), webhook.TriggerOptions{IdempotencyKey: "k1"})
		require.NoError(t, err)

		pass, err := q.ProcessReady(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pass.Succeeded)

		pending, err := store.GetAllDeliveries(ctx, webhook.DeliveryFilter{Status: webhook.Pending})
		require.NoError(t, err)
		assert.Empty(t, pending)

		all, err := store.GetAllDeliveries(ctx, webhook.DeliveryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, webhook.Success, all[0].Status)
		assert.Equal(t, 1, all[0].AttemptCount)
		assert.Equal(t, "k1", all[0].IdempotencyKey)

		again, err := svc.Trigger(ctx, "user.created", json.RawMessage(`{}`), webhook.TriggerOptions{IdempotencyKey: "k1"})
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		require.NotNil(t, again.Existing)
		assert.Equal(t, webhook.Success, again.Existing.Status)
	})

	t.Run("error - every enqueue fails and the key stays usable", func(t *testing.T) {
		store := memory.NewStore()
		enq := mocks.NewEnqueuer(t)
		svc := webhook.NewService(store, enq)
		svc.Now = fixedNow

		_, err := svc.Register(ctx, webhook.Webhook{URL: "https://example.com", Events: []string{"user.created"}, Active: true})
		require.NoError(t, err)

		matchesPayload := webhook.MatchPayload(func(p payload.Payload) bool {
			return p.Event == "user.created" && p.IdempotencyKey == "k1"
		})
		matchesOptions := mock.MatchedBy(func(o webhook.DeliverOptions) bool {
			return o.Mode == webhook.Async && o.MaxRetries == 5 && o.Priority == 1 && o.ItemID != ""
		})
		enq.On("DeliverWebhook", mock.Anything, mock.Anything, matchesPayload, matchesOptions).
			Return(webhook.QueueItem{}, errors.New("store down")).Once()

		res, err := svc.Trigger(ctx, "user.created", nil, webhook.TriggerOptions{IdempotencyKey: "k1", MaxRetries: 5, Priority: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store down")
		assert.Equal(t, 1, res.Triggered)
		assert.Equal(t, 0, res.Queued)

		left, err := store.GetAllDeliveries(ctx, webhook.DeliveryFilter{})
		require.NoError(t, err)
		assert.Empty(t, left)

		enq.On("DeliverWebhook", mock.Anything, mock.Anything, matchesPayload, matchesOptions).
			Return(webhook.QueueItem{ID: "item-1"}, nil).Once()
		enq.On("Stats", mock.Anything).Return(webhook.QueueStats{Pending: 1}, nil).Once()

		res, err = svc.Trigger(ctx, "user.created", nil, webhook.TriggerOptions{IdempotencyKey: "k1", MaxRetries: 5, Priority: 1})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, 1, res.Queued)
		assert.Equal(t, 1, res.QueueStats.Pending)
	})
}

func TestServiceDeliveriesAndQueue(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQueuedService(t, mocks.NewDeliverer(t), fixedNow)

	t.Run("error - negative limit", func(t *testing.T) {
		_, err := svc.Deliveries(ctx, webhook.DeliveryFilter{Limit: -1})
		var verr *webhook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "limit", verr.Field)
	})

	t.Run("error - unknown status", func(t *testing.T) {
		_, err := svc.Deliveries(ctx, webhook.DeliveryFilter{Status: webhook.DeliveryStatus(42)})
		var verr *webhook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "status", verr.Field)
	})

	t.Run("error - retry unknown dead letter", func(t *testing.T) {
		_, err := svc.RetryDeadLetter(ctx, "missing")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("success - empty snapshot", func(t *testing.T) {
		snap, err := svc.Queue(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Items)
		assert.Empty(t, snap.DeadLetters)
		assert.Equal(t, 0, snap.Stats.Pending)
	})
}

// An always-failing endpoint ends in exactly one dead letter holding every attempt
func TestDispatchToDeadLetter(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	var mu sync.Mutex
	now := testNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	exec := executor.New(2 * time.Second)
	svc, store, q := newQueuedService(t, exec, clock)

	wh, err := svc.Register(ctx, webhook.Webhook{URL: srv.URL, Events: []string{"x.y"}, Active: true})
	require.NoError(t, err)

	res, err := svc.Trigger(ctx, "x.y", json.RawMessage(`{"n":1}`), webhook.TriggerOptions{MaxRetries: 3})
	require.NoError(t, err)
	require.Equal(t, 1, res.Queued)

	for i := 0; i < 5; i++ {
		_, err := q.ProcessReady(ctx)
		require.NoError(t, err)
		advance(2 * time.Hour)
	}

	assert.Equal(t, int32(3), hits.Load())

	snap, err := svc.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	require.Len(t, snap.DeadLetters, 1)
	dl := snap.DeadLetters[0]
	assert.Equal(t, wh.ID, dl.WebhookID)
	require.Len(t, dl.DeliveryAttempts, 3)
	assert.Equal(t, 500, dl.DeliveryAttempts[2].StatusCode)
	assert.Contains(t, dl.FailureReason, "unexpected status code 500")

	got, err := svc.Get(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailureCount)
	assert.Equal(t, 0, got.DeliveryCount)

	history, err := store.GetAllDeliveries(ctx, webhook.DeliveryFilter{WebhookID: wh.ID, Status: webhook.Failed})
	require.NoError(t, err)
	assert.Len(t, history, 3)

	item, err := svc.RetryDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.RetryCount)
	assert.Equal(t, 3, item.MaxRetries)

	snap, err = svc.Queue(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Empty(t, snap.DeadLetters)
}

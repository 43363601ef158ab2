package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatch/storage/memory"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhook(url string, active bool, events ...string) webhook.Webhook {
	return webhook.Webhook{URL: url, Events: events, Active: active, Secret: "shared-token"}
}

func TestWebhooks(t *testing.T) {
	ctx := context.Background()

	t.Run("success - create assigns id and timestamps", func(t *testing.T) {
		s := memory.NewStore()
		wh, err := s.CreateWebhook(ctx, newWebhook("https://x.test/hook", true, "resource.created"))
		require.NoError(t, err)
		assert.NotEmpty(t, wh.ID)
		assert.False(t, wh.CreatedAt.IsZero())

		got, found, err := s.GetWebhookByID(ctx, wh.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, wh, got)
	})

	t.Run("error - create rejects invalid url", func(t *testing.T) {
		s := memory.NewStore()
		_, err := s.CreateWebhook(ctx, newWebhook("not a url", true, "resource.created"))
		var verr *webhook.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "url", verr.Field)
	})

	t.Run("miss is not an error", func(t *testing.T) {
		s := memory.NewStore()
		_, found, err := s.GetWebhookByID(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.UpdateWebhook(ctx, "missing", webhook.WebhookPatch{})
		require.NoError(t, err)
		assert.False(t, found)

		deleted, err := s.DeleteWebhook(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("event filtering returns only active subscribers", func(t *testing.T) {
		s := memory.NewStore()
		exact, _ := s.CreateWebhook(ctx, newWebhook("https://a.test", true, "resource.created"))
		wildcard, _ := s.CreateWebhook(ctx, newWebhook("https://b.test", true, "*"))
		prefix, _ := s.CreateWebhook(ctx, newWebhook("https://c.test", true, "resource.*"))
		_, _ = s.CreateWebhook(ctx, newWebhook("https://d.test", false, "resource.created"))
		_, _ = s.CreateWebhook(ctx, newWebhook("https://e.test", true, "comment.flagged"))

		got, err := s.GetWebhooksByEvent(ctx, "resource.created")
		require.NoError(t, err)

		ids := make([]string, 0, len(got))
		for _, wh := range got {
			ids = append(ids, wh.ID)
		}
		assert.ElementsMatch(t, []string{exact.ID, wildcard.ID, prefix.ID}, ids)
	})

	t.Run("update re-validates url", func(t *testing.T) {
		s := memory.NewStore()
		wh, err := s.CreateWebhook(ctx, newWebhook("https://x.test/hook", true, "resource.created"))
		require.NoError(t, err)

		bad := "ftp://x.test"
		_, found, err := s.UpdateWebhook(ctx, wh.ID, webhook.WebhookPatch{URL: &bad})
		assert.True(t, found)
		var verr *webhook.ValidationError
		require.True(t, errors.As(err, &verr))

		good := "https://y.test/hook"
		inactive := false
		updated, found, err := s.UpdateWebhook(ctx, wh.ID, webhook.WebhookPatch{URL: &good, Active: &inactive})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, good, updated.URL)
		assert.False(t, updated.Active)
		assert.Equal(t, []string{"resource.created"}, updated.Events)
	})

	t.Run("list filter", func(t *testing.T) {
		s := memory.NewStore()
		_, _ = s.CreateWebhook(ctx, newWebhook("https://a.test", true, "resource.created"))
		_, _ = s.CreateWebhook(ctx, newWebhook("https://b.test", false, "resource.created"))

		inactive := false
		got, err := s.GetAllWebhooks(ctx, webhook.WebhookFilter{Active: &inactive})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "https://b.test", got[0].URL)

		all, err := s.GetAllWebhooks(ctx, webhook.WebhookFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("counters", func(t *testing.T) {
		s := memory.NewStore()
		wh, _ := s.CreateWebhook(ctx, newWebhook("https://a.test", true, "resource.created"))
		require.NoError(t, s.IncrementWebhookCounters(ctx, wh.ID, 2, 1))
		require.NoError(t, s.IncrementWebhookCounters(ctx, "missing", 1, 1))

		got, _, _ := s.GetWebhookByID(ctx, wh.ID)
		assert.Equal(t, 2, got.DeliveryCount)
		assert.Equal(t, 1, got.FailureCount)
	})
}

func TestDeliveries(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	for i, status := range []webhook.DeliveryStatus{webhook.Pending, webhook.Failed, webhook.Success} {
		_, err := s.RecordDelivery(ctx, webhook.Delivery{
			WebhookID:      "wh-1",
			QueueItemID:    "item-1",
			Status:         status,
			AttemptCount:   i,
			IdempotencyKey: "key-1",
		})
		require.NoError(t, err)
	}
	_, err := s.RecordDelivery(ctx, webhook.Delivery{WebhookID: "wh-2", Status: webhook.Failed})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		got, err := s.GetAllDeliveries(ctx, webhook.DeliveryFilter{WebhookID: "wh-1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, webhook.Success, got[0].Status)
		assert.Equal(t, webhook.Pending, got[2].Status)
	})

	t.Run("status and limit", func(t *testing.T) {
		got, err := s.GetAllDeliveries(ctx, webhook.DeliveryFilter{Status: webhook.Failed, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "wh-2", got[0].WebhookID)
	})

	t.Run("idempotency lookup returns most recent", func(t *testing.T) {
		got, found, err := s.GetDeliveryByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, webhook.Success, got.Status)

		_, found, err = s.GetDeliveryByIdempotencyKey(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestDeliveryUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	first, err := s.RecordDelivery(ctx, webhook.Delivery{WebhookID: "wh-1", Status: webhook.Pending, IdempotencyKey: "key-1"})
	require.NoError(t, err)
	_, err = s.RecordDelivery(ctx, webhook.Delivery{WebhookID: "wh-1", Status: webhook.Failed})
	require.NoError(t, err)

	t.Run("update keeps the position in the trail", func(t *testing.T) {
		first.Status = webhook.Success
		first.StatusCode = 200
		updated, err := s.UpdateDelivery(ctx, first)
		require.NoError(t, err)
		assert.True(t, updated)

		got, err := s.GetAllDeliveries(ctx, webhook.DeliveryFilter{WebhookID: "wh-1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[1].ID)
		assert.Equal(t, webhook.Success, got[1].Status)

		pending, err := s.GetAllDeliveries(ctx, webhook.DeliveryFilter{Status: webhook.Pending})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown id is not updated", func(t *testing.T) {
		updated, err := s.UpdateDelivery(ctx, webhook.Delivery{ID: "missing"})
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("delete drops the record", func(t *testing.T) {
		deleted, err := s.DeleteDelivery(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, found, err := s.GetDeliveryByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.False(t, found)

		deleted, err = s.DeleteDelivery(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestClaimIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := memory.NewStore()
	s.Now = func() time.Time { return now }

	t.Run("exactly one concurrent caller wins", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ClaimIdempotencyKey(ctx, "key-race", time.Hour)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("expired claim can be taken again", func(t *testing.T) {
		ok, err := s.ClaimIdempotencyKey(ctx, "key-ttl", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		now = now.Add(2 * time.Minute)
		ok, err = s.ClaimIdempotencyKey(ctx, "key-ttl", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("released claim can be taken again", func(t *testing.T) {
		ok, err := s.ClaimIdempotencyKey(ctx, "key-release", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.ReleaseIdempotencyKey(ctx, "key-release"))
		ok, err = s.ClaimIdempotencyKey(ctx, "key-release", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) *memory.Store {
		t.Helper()
		s := memory.NewStore()
		s.Now = func() time.Time { return now }
		items := []webhook.QueueItem{
			{ID: "low-early", Priority: 0, ScheduledFor: now.Add(-2 * time.Minute)},
			{ID: "low-late", Priority: 0, ScheduledFor: now.Add(-time.Minute)},
			{ID: "high", Priority: 5, ScheduledFor: now},
			{ID: "future", Priority: 9, ScheduledFor: now.Add(time.Minute)},
		}
		for _, item := range items {
			item.WebhookID = "wh-1"
			item.MaxRetries = 3
			_, err := s.Enqueue(ctx, item)
			require.NoError(t, err)
		}
		return s
	}

	ids := func(items []webhook.QueueItem) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.ID)
		}
		return out
	}

	t.Run("dequeue ready orders by priority then schedule", func(t *testing.T) {
		s := seed(t)
		ready, err := s.DequeueReady(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"high", "low-early", "low-late"}, ids(ready))

		// read-only
		again, err := s.DequeueReady(ctx, now)
		require.NoError(t, err)
		assert.Len(t, again, 3)
	})

	t.Run("claimed items are hidden until released", func(t *testing.T) {
		s := seed(t)
		first, err := s.ClaimReady(ctx, now, 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []string{"high", "low-early"}, ids(first))

		second, err := s.ClaimReady(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []string{"low-late"}, ids(second))

		ok, err := s.ClaimQueueItem(ctx, "high", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		item := first[0]
		item.RetryCount = 1
		require.NoError(t, s.RescheduleQueueItem(ctx, item))

		third, err := s.ClaimReady(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []string{"high"}, ids(third))
		assert.Equal(t, 1, third[0].RetryCount)
	})

	t.Run("expired lease is reclaimable", func(t *testing.T) {
		s := seed(t)
		_, err := s.ClaimReady(ctx, now, 10, time.Minute)
		require.NoError(t, err)

		later, err := s.ClaimReady(ctx, now.Add(2*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		assert.Len(t, later, 4)
	})

	t.Run("remove", func(t *testing.T) {
		s := seed(t)
		removed, err := s.RemoveFromQueue(ctx, "high")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.RemoveFromQueue(ctx, "high")
		require.NoError(t, err)
		assert.False(t, removed)

		queue, err := s.GetQueue(ctx)
		require.NoError(t, err)
		assert.Len(t, queue, 3)
	})
}

func TestDeadLetter(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	p, err := payload.New("resource.created", nil, "key-1", time.Now())
	require.NoError(t, err)
	item, err := s.Enqueue(ctx, webhook.QueueItem{WebhookID: "wh-1", Event: p.Event, Payload: p, MaxRetries: 3, RetryCount: 3})
	require.NoError(t, err)

	attempts := []webhook.Delivery{{ID: "d1", Status: webhook.Failed}, {ID: "d2", Status: webhook.Failed}}
	dl, err := s.MoveToDeadLetter(ctx, item, "max retries exceeded: boom", attempts)
	require.NoError(t, err)
	assert.Equal(t, item.ID, dl.QueueItemID)
	assert.Len(t, dl.DeliveryAttempts, 2)

	queue, err := s.GetQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	got, found, err := s.GetDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "max retries exceeded: boom", got.FailureReason)

	all, err := s.GetDeadLetterQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	removed, err := s.RemoveFromDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err = s.GetDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHeartbeats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := memory.NewStore()
	s.Now = func() time.Time { return now }

	require.NoError(t, s.SetWorkerHeartbeat(ctx, "w1", "idle"))
	now = now.Add(45 * time.Second)
	require.NoError(t, s.SetWorkerHeartbeat(ctx, "w2", "processing"))
	now = now.Add(30 * time.Second)

	workers, err := s.GetActiveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w2", workers[0].WorkerID)
}

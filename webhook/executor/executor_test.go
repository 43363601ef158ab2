package executor_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/executor"
	"github.com/marcelsud/webhook-dispatch/webhook/payload"
	"github.com/marcelsud/webhook-dispatch/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(t *testing.T) webhook.QueueItem {
	t.Helper()
	p, err := payload.New("resource.created", json.RawMessage(`{"id":42}`), "evt_key_1", time.Now())
	require.NoError(t, err)
	return webhook.QueueItem{
		ID:         "item-1",
		WebhookID:  "wh-1",
		Event:      p.Event,
		Payload:    p,
		MaxRetries: 3,
	}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	secret, err := signature.GenerateSecret(32)
	require.NoError(t, err)

	t.Run("success - signed POST with headers", func(t *testing.T) {
		var received *http.Request
		var body []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received = r
			body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		item := testItem(t)
		wh := webhook.Webhook{ID: "wh-1", URL: srv.URL, Secret: secret.String()}

		result := executor.New(time.Second).Deliver(ctx, wh, item)

		require.True(t, result.Success, result.ErrorMessage)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, `{"ok":true}`, result.ResponseBody)
		assert.GreaterOrEqual(t, result.DurationMs, int64(0))

		assert.Equal(t, http.MethodPost, received.Method)
		assert.Equal(t, "application/json", received.Header.Get("Content-Type"))
		assert.Equal(t, "resource.created", received.Header.Get(executor.HeaderEvent))
		assert.Equal(t, "evt_key_1", received.Header.Get(executor.HeaderIdempotencyKey))
		assert.Equal(t, "item-1", received.Header.Get(signature.HeaderID))

		valid, err := signature.VerifyRequest(secret, received.Header, body)
		require.NoError(t, err)
		assert.True(t, valid)

		var sent payload.Payload
		require.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, "resource.created", sent.Event)
		assert.JSONEq(t, `{"id":42}`, string(sent.Data))
	})

	t.Run("success - opaque secret signs too", func(t *testing.T) {
		var received http.Header
		var body []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received = r.Header.Clone()
			body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		wh := webhook.Webhook{URL: srv.URL, Secret: "shared-token"}
		result := executor.New(time.Second).Deliver(ctx, wh, testItem(t))
		require.True(t, result.Success)

		opaque, err := signature.ParseSecret("shared-token")
		require.NoError(t, err)
		valid, err := signature.VerifyRequest(opaque, received, body)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("failure - non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("down"))
		}))
		defer srv.Close()

		wh := webhook.Webhook{URL: srv.URL, Secret: secret.String()}
		result := executor.New(time.Second).Deliver(ctx, wh, testItem(t))

		assert.False(t, result.Success)
		assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
		assert.Equal(t, "down", result.ResponseBody)
		assert.Contains(t, result.ErrorMessage, "503")
	})

	t.Run("failure - timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		wh := webhook.Webhook{URL: srv.URL, Secret: secret.String()}
		result := executor.New(50*time.Millisecond).Deliver(ctx, wh, testItem(t))

		assert.False(t, result.Success)
		assert.Equal(t, 0, result.StatusCode)
		assert.Contains(t, result.ErrorMessage, "timed out")
	})

	t.Run("failure - connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		wh := webhook.Webhook{URL: url, Secret: secret.String()}
		result := executor.New(time.Second).Deliver(ctx, wh, testItem(t))

		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "sending request")
	})

	t.Run("response body is capped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("a", executor.MaxResponseBody+100)))
		}))
		defer srv.Close()

		wh := webhook.Webhook{URL: srv.URL, Secret: secret.String()}
		result := executor.New(time.Second).Deliver(ctx, wh, testItem(t))

		require.True(t, result.Success)
		assert.Len(t, result.ResponseBody, executor.MaxResponseBody)
	})

	t.Run("failure - missing secret", func(t *testing.T) {
		wh := webhook.Webhook{URL: "http://127.0.0.1:1"}
		result := executor.New(time.Second).Deliver(ctx, wh, testItem(t))

		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "parsing secret")
	})
}

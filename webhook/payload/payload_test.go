package payload

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success - keeps caller idempotency key", func(t *testing.T) {
		p, err := New("resource.created", json.RawMessage(`{"id":1}`), "key-1", now)
		require.NoError(t, err)
		assert.Equal(t, "resource.created", p.Event)
		assert.Equal(t, "key-1", p.IdempotencyKey)
		assert.Equal(t, now, p.Timestamp)
	})

	t.Run("success - generates idempotency key", func(t *testing.T) {
		p, err := New("resource.created", json.RawMessage(`{}`), "", now)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(p.IdempotencyKey, "evt_1704110400000_"))
	})

	t.Run("error - invalid event name", func(t *testing.T) {
		_, err := New("invalid-type-with-dashes", nil, "", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating payload")
	})

	t.Run("error - data is not JSON", func(t *testing.T) {
		_, err := New("resource.created", json.RawMessage(`{broken`), "", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "valid JSON")
	})
}

func TestPayloadJSON(t *testing.T) {
	t.Run("wire format uses camelCase keys and RFC3339 timestamp", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		p, err := New("resource.created", json.RawMessage(`{"id":1}`), "k", now)
		require.NoError(t, err)

		body, err := p.Bytes()
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"resource.created","data":{"id":1},"timestamp":"2024-01-01T12:00:00Z","idempotencyKey":"k"}`, string(body))

		var back Payload
		require.NoError(t, json.Unmarshal(body, &back))
		assert.Equal(t, p.Event, back.Event)
		assert.True(t, p.Timestamp.Equal(back.Timestamp))
	})

	t.Run("empty data encodes as null", func(t *testing.T) {
		p := Payload{Event: "a.b", Timestamp: time.Now(), IdempotencyKey: "k"}
		body, err := p.Bytes()
		require.NoError(t, err)
		assert.Contains(t, string(body), `"data":null`)
	})

	t.Run("error - bad timestamp", func(t *testing.T) {
		var p Payload
		err := json.Unmarshal([]byte(`{"event":"a","timestamp":"yesterday"}`), &p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing timestamp")
	})
}

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		name          string
		subscriptions []string
		event         string
		want          bool
	}{
		{"exact", []string{"resource.created"}, "resource.created", true},
		{"wildcard", []string{"*"}, "comment.flagged", true},
		{"prefix", []string{"resource.*"}, "resource.updated", true},
		{"prefix does not match sibling", []string{"resource.*"}, "resources.updated", false},
		{"prefix does not match bare", []string{"resource.*"}, "resource", false},
		{"no match", []string{"resource.updated"}, "resource.created", false},
		{"empty subscriptions", nil, "resource.created", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesEvent(tt.subscriptions, tt.event))
		})
	}
}

func TestValidateSubscription(t *testing.T) {
	assert.NoError(t, ValidateSubscription("*"))
	assert.NoError(t, ValidateSubscription("resource.*"))
	assert.NoError(t, ValidateSubscription("resource.created"))
	assert.Error(t, ValidateSubscription(""))
	assert.Error(t, ValidateSubscription("bad event"))
	assert.Error(t, ValidateSubscription(".*"))
}

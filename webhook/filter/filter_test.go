package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	assert.NoError(t, Compile(`data.amount > 100`))
	assert.NoError(t, Compile(`event == "resource.created"`))
	assert.Error(t, Compile(`data.amount >`))
}

func TestEvaluatorMatch(t *testing.T) {
	e := NewEvaluator()
	data := json.RawMessage(`{"amount":150,"tags":["featured"]}`)

	t.Run("empty expression matches", func(t *testing.T) {
		ok, err := e.Match("", "resource.created", data)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("data field comparison", func(t *testing.T) {
		ok, err := e.Match(`data.amount > 100`, "resource.created", data)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = e.Match(`data.amount > 200`, "resource.created", data)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("event variable", func(t *testing.T) {
		ok, err := e.Match(`event startsWith "resource."`, "resource.updated", nil)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("membership", func(t *testing.T) {
		ok, err := e.Match(`"featured" in data.tags`, "resource.created", data)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("error - invalid expression", func(t *testing.T) {
		_, err := e.Match(`data.amount >`, "resource.created", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compiling filter")
	})

	t.Run("error - invalid data", func(t *testing.T) {
		_, err := e.Match(`true`, "resource.created", json.RawMessage(`{broken`))
		require.Error(t, err)
	})
}

package llmcache_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/llmcache"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := llmcache.New(t.TempDir(), time.Hour, 0.0, nil)
	msgs := []map[string]string{{"role": "user", "content": "hi"}}

	require.NoError(t, c.Set("claude-sonnet", 0.0, msgs, "", json.RawMessage(`{"text":"hello"}`)))

	resp, ok := c.Get("claude-sonnet", 0.0, msgs, "")
	require.True(t, ok)
	assert.JSONEq(t, `{"text":"hello"}`, string(resp))
}

func TestGetMissesOnUncachedKey(t *testing.T) {
	c := llmcache.New(t.TempDir(), time.Hour, 0.0, nil)
	_, ok := c.Get("claude-sonnet", 0.0, []map[string]string{{"role": "user", "content": "new"}}, "")
	assert.False(t, ok)
}

func TestTemperatureAboveCeilingNeverCaches(t *testing.T) {
	c := llmcache.New(t.TempDir(), time.Hour, 0.0, nil)
	msgs := []map[string]string{{"role": "user", "content": "hi"}}
	require.NoError(t, c.Set("claude-sonnet", 0.7, msgs, "", json.RawMessage(`{"text":"x"}`)))

	_, ok := c.Get("claude-sonnet", 0.7, msgs, "")
	assert.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := llmcache.New(t.TempDir(), 10*time.Millisecond, 0.0, nil)
	msgs := []map[string]string{{"role": "user", "content": "hi"}}
	require.NoError(t, c.Set("claude-sonnet", 0.0, msgs, "", json.RawMessage(`{"text":"x"}`)))

	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("claude-sonnet", 0.0, msgs, "")
	assert.False(t, ok)
}

func TestKeyDiffersByExtra(t *testing.T) {
	msgs := []map[string]string{{"role": "user", "content": "hi"}}
	k1 := llmcache.Key("claude-sonnet", 0.0, msgs, "prompt-v1")
	k2 := llmcache.Key("claude-sonnet", 0.0, msgs, "prompt-v2")
	assert.NotEqual(t, k1, k2)
}

func TestClearRemovesAllEntries(t *testing.T) {
	c := llmcache.New(t.TempDir(), time.Hour, 0.0, nil)
	require.NoError(t, c.Set("m", 0.0, "a", "", json.RawMessage(`{}`)))
	require.NoError(t, c.Set("m", 0.0, "b", "", json.RawMessage(`{}`)))
	assert.Equal(t, 2, c.Size())

	removed, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Size())
}

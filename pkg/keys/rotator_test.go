package keys_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/keys"
)

func TestGetKeyRotatesRoundRobin(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEYS", "k1,k2,k3")
	r := keys.NewRotator(time.Minute, nil)

	seen := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		k, ok := r.GetKey("anthropic")
		require.True(t, ok)
		seen = append(seen, k)
	}
	assert.Equal(t, []string{"k1", "k2", "k3", "k1", "k2", "k3"}, seen)
}

func TestGetKeyFallsBackToSingleKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "solo")
	r := keys.NewRotator(time.Minute, nil)
	k, ok := r.GetKey("openai")
	require.True(t, ok)
	assert.Equal(t, "solo", k)
}

func TestGetKeyReturnsFalseWhenNoneConfigured(t *testing.T) {
	r := keys.NewRotator(time.Minute, nil)
	_, ok := r.GetKey("google")
	assert.False(t, ok)
}

func TestMarkRateLimitedSkipsKeyUntilCooldownExpires(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEYS", "k1,k2")
	r := keys.NewRotator(20*time.Millisecond, nil)

	k1, _ := r.GetKey("anthropic")
	assert.Equal(t, "k1", k1)
	r.MarkRateLimited("anthropic", "k1")

	k2, _ := r.GetKey("anthropic")
	assert.Equal(t, "k2", k2)

	k3, _ := r.GetKey("anthropic")
	assert.Equal(t, "k2", k3, "k1 still cooling, k2 loops back around")

	time.Sleep(30 * time.Millisecond)
	k4, _ := r.GetKey("anthropic")
	assert.Equal(t, "k1", k4, "cooldown expired, k1 available again")
}

func TestGetKeyReturnsFalseWhenAllKeysCooling(t *testing.T) {
	t.Setenv("GOOGLE_API_KEYS", "only")
	r := keys.NewRotator(time.Minute, nil)
	k, _ := r.GetKey("google")
	r.MarkRateLimited("google", k)
	_, ok := r.GetKey("google")
	assert.False(t, ok)
}

func TestStatsReportsTotalAndAvailable(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEYS", "k1,k2")
	r := keys.NewRotator(time.Minute, nil)
	r.GetKey("anthropic")
	r.MarkRateLimited("anthropic", "k1")

	stats := r.Stats()["anthropic"]
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Available)
}

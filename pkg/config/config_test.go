package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 5.00, cfg.Cost.MaxCostPerRunUSD)
	require.Equal(t, 5, cfg.Queue.MaxConcurrentSessions)
}

func TestInitializeMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "cost:\n  max_cost_per_run: 1.5\nqueue:\n  queue_limit: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "researchengine.yaml"), []byte(yaml), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1.5, cfg.Cost.MaxCostPerRunUSD)
	require.Equal(t, 7, cfg.Queue.QueueLimit)
	// untouched default survives the merge
	require.Equal(t, 0.80, cfg.Cost.WarnAtPercentage)
}

func TestValidateRejectsBadBudget(t *testing.T) {
	cfg := Defaults()
	cfg.Cost.MaxCostPerRunUSD = 0
	require.Error(t, Validate(cfg))
}

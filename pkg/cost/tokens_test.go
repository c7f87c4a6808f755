package cost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/cost"
)

func TestEstimateTokensNonEmptyForText(t *testing.T) {
	n, err := cost.EstimateTokens("What is the capital of France?")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestEstimateTokensEmptyStringIsZero(t *testing.T) {
	n, err := cost.EstimateTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

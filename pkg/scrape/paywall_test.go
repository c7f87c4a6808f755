package scrape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepresearch-labs/agent/pkg/scrape"
)

func TestPaywallDetectorFlagsStrongSignals(t *testing.T) {
	d := scrape.NewPaywallDetector(3.0)
	result := d.Detect(`<div class="paywall">Subscribe to read the rest of this article.</div>`)
	assert.True(t, result.IsPaywalled)
	assert.Greater(t, result.AdjustedWeight, 3.0)
}

func TestPaywallDetectorIgnoresCleanArticle(t *testing.T) {
	d := scrape.NewPaywallDetector(3.0)
	result := d.Detect(`<p>This is an ordinary article about gardening with no gating language at all.</p>`)
	assert.False(t, result.IsPaywalled)
	assert.Equal(t, 0.0, result.AdjustedWeight)
}

func TestPaywallDetectorOpenAccessSignalsOffsetWeakPaywallSignal(t *testing.T) {
	d := scrape.NewPaywallDetector(3.0)
	result := d.Detect(`<p>Premium content elsewhere, but this article is free to read and open access.</p>`)
	assert.False(t, result.IsPaywalled)
}

func TestPaywallDetectorDefaultThreshold(t *testing.T) {
	d := scrape.NewPaywallDetector(0)
	result := d.Detect(`<p>Sign in to continue reading this story.</p>`)
	// A single mid-weight signal (2.0) shouldn't cross the 3.0 default.
	assert.False(t, result.IsPaywalled)
	assert.InDelta(t, 2.0, result.AdjustedWeight, 0.01)
}

package nodes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/state"
)

func TestCheckReportQualityPassesWellFormedReport(t *testing.T) {
	result := nodes.CheckReportQuality(sampleReport, []state.SubQuestion{
		{ID: 1, Question: "thoroughly covers the topic"},
	})
	assert.True(t, result.Passed)
	assert.Empty(t, result.MissingSections)
	assert.Equal(t, 2, result.CitationCount)
	assert.InDelta(t, 1.0, result.SubtopicCoverage, 1e-9)
}

func TestCheckReportQualityFlagsMissingSections(t *testing.T) {
	result := nodes.CheckReportQuality("## Findings\nsome findings [1]", nil)
	assert.False(t, result.Passed)
	assert.Contains(t, result.MissingSections, "Executive Summary")
	assert.Contains(t, result.MissingSections, "Sources")
}

func TestCheckReportQualityFlagsNoCitations(t *testing.T) {
	report := "## Executive Summary\ntext\n## Findings\ntext\n## Sources\ntext"
	result := nodes.CheckReportQuality(report, nil)
	assert.False(t, result.Passed)
	assert.Equal(t, 0, result.CitationCount)
}

func TestCheckReportQualityEmptyReportFailsImmediately(t *testing.T) {
	result := nodes.CheckReportQuality("   ", nil)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.MissingSections)
}

func TestCheckReportQualityLowCoverageFailsThreshold(t *testing.T) {
	report := "## Executive Summary\nirrelevant text\n## Findings\nmore irrelevant text [1]\n## Sources\n[1] https://a.example"
	result := nodes.CheckReportQuality(report, []state.SubQuestion{
		{ID: 1, Question: "completely unrelated astrophysics jargon"},
	})
	assert.False(t, result.Passed)
	assert.Less(t, result.SubtopicCoverage, 0.8)
}

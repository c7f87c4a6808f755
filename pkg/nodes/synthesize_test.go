package nodes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/state"
)

const sampleReport = `## Executive Summary
This report covers the topic thoroughly [1].

## Findings
Significant findings were uncovered [1][2].

## Sources
[1] https://a.example
[2] https://b.example
`

func TestSynthesizeBuildsSourcesAndRunsQualityCheck(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(sampleReport), nil, nil)

	sess := state.NewSession("s1", "query")
	sess.SubQuestions = []state.SubQuestion{{ID: 1, Question: "thoroughly covers the topic"}}
	sess.ScrapedContent = []state.ScrapedPage{
		{URL: "https://a.example", Title: "A", SubQuestionID: 1, QualityScore: 0.9},
		{URL: "https://a.example", Title: "A dup", SubQuestionID: 1, QualityScore: 0.9},
	}
	sess.Summaries = []state.Summary{{SubQuestionID: 1, Text: "found stuff about history of X"}}

	delta, err := nodes.Synthesize(context.Background(), sess, deps)
	require.NoError(t, err)

	assert.Equal(t, sampleReport, delta.FinalReport)
	require.Len(t, delta.Sources, 1, "sources must be deduplicated by URL")
	require.NotNil(t, delta.QualityCheck)
	assert.True(t, delta.QualityCheck.Passed)
}

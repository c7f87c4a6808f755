package nodes_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/state"
)

// capturingLLMHandler behaves like jsonLLMHandler but also records the
// raw request body of the most recent call into *captured, so a test can
// assert on the exact prompt text sent to the LLM.
func capturingLLMHandler(text string, captured *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = string(body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":  text,
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}
}

func TestSummarizeGroupsBySubQuestion(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(`{"summary":"compressed","key_findings":["finding one"]}`), nil, nil)

	sess := state.NewSession("s1", "query")
	sess.SubQuestions = []state.SubQuestion{{ID: 1, Question: "q1"}, {ID: 2, Question: "q2"}}
	sess.ScrapedContent = []state.ScrapedPage{
		{URL: "https://a.example", SubQuestionID: 1, Content: "content a"},
		{URL: "https://b.example", SubQuestionID: 1, Content: "content b"},
		{URL: "https://c.example", SubQuestionID: 2, Content: "content c"},
	}

	delta, err := nodes.Summarize(context.Background(), sess, deps)
	require.NoError(t, err)
	require.Len(t, delta.Summaries, 2)
	assert.Equal(t, 1, delta.Summaries[0].SubQuestionID)
	assert.Equal(t, 2, delta.Summaries[1].SubQuestionID)
	assert.Equal(t, "compressed", delta.Summaries[0].Text)
	assert.ElementsMatch(t, []string{"https://a.example", "https://b.example"}, delta.Summaries[0].SourceURLs)
}

func TestSummarizeSkipsSubQuestionsWithNoContent(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(`{"summary":"x","key_findings":[]}`), nil, nil)

	sess := state.NewSession("s1", "query")
	sess.SubQuestions = []state.SubQuestion{{ID: 1, Question: "q1"}, {ID: 2, Question: "q2"}}
	sess.ScrapedContent = []state.ScrapedPage{{URL: "https://a.example", SubQuestionID: 1, Content: "content a"}}

	delta, err := nodes.Summarize(context.Background(), sess, deps)
	require.NoError(t, err)
	require.Len(t, delta.Summaries, 1)
	assert.Equal(t, 1, delta.Summaries[0].SubQuestionID)
}

func TestSummarizeSkipsAlreadySummarized(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(`{"summary":"x","key_findings":[]}`), nil, nil)

	sess := state.NewSession("s1", "query")
	sess.SubQuestions = []state.SubQuestion{{ID: 1, Question: "q1"}}
	sess.ScrapedContent = []state.ScrapedPage{{URL: "https://a.example", SubQuestionID: 1, Content: "content a"}}
	sess.Summaries = []state.Summary{{SubQuestionID: 1, Text: "already done"}}

	delta, err := nodes.Summarize(context.Background(), sess, deps)
	require.NoError(t, err)
	assert.Empty(t, delta.Summaries)
}

// TestSummarizeMasksOldestSourcesPastBudget gives one sub-question far
// more scraped content than the rolling-window budget allows and checks
// that the prompt actually sent to the LLM carries the placeholder for
// the earliest sources while keeping the most recent ones in full.
func TestSummarizeMasksOldestSourcesPastBudget(t *testing.T) {
	var captured string
	deps := testDeps(t, capturingLLMHandler(`{"summary":"x","key_findings":[]}`, &captured), nil, nil)

	sess := state.NewSession("s1", "query")
	sess.SubQuestions = []state.SubQuestion{{ID: 1, Question: "q1"}}

	const numSources = 15
	bigContent := strings.Repeat("word ", 10_000) // comfortably pushes the group past the 100k-token default budget
	var pages []state.ScrapedPage
	for i := 0; i < numSources; i++ {
		pages = append(pages, state.ScrapedPage{
			URL:           fmt.Sprintf("https://source-%02d.example", i),
			SubQuestionID: 1,
			Content:       fmt.Sprintf("marker-%02d %s", i, bigContent),
		})
	}
	sess.ScrapedContent = pages

	_, err := nodes.Summarize(context.Background(), sess, deps)
	require.NoError(t, err)
	require.NotEmpty(t, captured)

	assert.Contains(t, captured, "[masked tool output from scrape]", "oldest sources should be masked once the group crosses the token budget")
	assert.NotContains(t, captured, "marker-00", "masked source's original content must not reach the prompt")
	assert.Contains(t, captured, fmt.Sprintf("marker-%02d", numSources-1), "most recent source must survive masking in full")
}

package nodes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/state"
)

func jsonLLMHandler(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":  text,
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}
}

func TestPlanProducesSequentialSubQuestions(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(`{"sub_questions":[
		{"question":"What is the history of X?","rationale":"context"},
		{"question":"What are the risks of X?","rationale":"risk"}
	],"reasoning":"split by angle"}`), nil, nil)

	sess := state.NewSession("s1", "Tell me about X")
	delta, err := nodes.Plan(context.Background(), sess, deps)
	require.NoError(t, err)

	require.Len(t, delta.SubQuestions, 2)
	assert.Equal(t, 1, delta.SubQuestions[0].ID)
	assert.Equal(t, 2, delta.SubQuestions[1].ID)
	require.NotNil(t, delta.CurrentSubtopicIndex)
	assert.Equal(t, 0, *delta.CurrentSubtopicIndex)
}

func TestPlanRejectsTooManySubQuestions(t *testing.T) {
	items := ""
	for i := 0; i < 11; i++ {
		if i > 0 {
			items += ","
		}
		items += `{"question":"q","rationale":"r"}`
	}
	deps := testDeps(t, jsonLLMHandler(`{"sub_questions":[`+items+`]}`), nil, nil)

	sess := state.NewSession("s1", "query")
	_, err := nodes.Plan(context.Background(), sess, deps)
	require.ErrorIs(t, err, apperrors.ErrInvariantViolation)
}

func TestPlanRejectsMalformedJSON(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler("not json at all"), nil, nil)

	sess := state.NewSession("s1", "query")
	_, err := nodes.Plan(context.Background(), sess, deps)
	require.ErrorIs(t, err, apperrors.ErrInvariantViolation)
}

func TestPlanFailsClosedWhenBudgetExhausted(t *testing.T) {
	deps := testDeps(t, jsonLLMHandler(`{"sub_questions":[{"question":"q"}]}`), nil, nil)
	deps.Cost = exhaustedTracker()

	sess := state.NewSession("s1", "query")
	_, err := nodes.Plan(context.Background(), sess, deps)
	require.ErrorIs(t, err, apperrors.ErrBudgetExhausted)
}

package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/state"
)

const synthesizeModel = "claude-sonnet"

// Synthesize produces the final Markdown report from every accumulated
// summary, with [N] citation markers referencing the deduplicated
// Sources list, then runs the advisory post-synthesis quality check.
func Synthesize(ctx context.Context, sess *state.Session, deps Deps) (state.Delta, error) {
	log := deps.logger().With("node", "synthesize", "session_id", sess.ID)
	log.Info("synthesize_start", "num_summaries", len(sess.Summaries))

	sources := buildSources(sess)
	prompt := buildSynthesisPrompt(sess, sources)

	model := synthesizeModel // Synthesize never demotes tiers, unlike Summarize/expansion calls.
	promptTokens, err := estimateTokens(prompt)
	if err != nil {
		return state.Delta{}, err
	}
	if err := deps.Cost.Reserve(model, promptTokens, 2048); err != nil {
		return state.Delta{}, err
	}

	resp, err := deps.LLM.Complete(ctx, llmclient.Request{
		Model:       model,
		Provider:    "anthropic",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   2048,
	})
	if err != nil {
		return state.Delta{}, err
	}
	costUSD := deps.Cost.Record(model, promptTokens, resp.OutputTokens)

	report := resp.Text
	quality := CheckReportQuality(report, sess.SubQuestions)

	log.Info("synthesize_complete", "word_count", quality.WordCount, "quality_passed", quality.Passed)

	return state.Delta{
		Step:         "synthesize",
		StepIndex:    4,
		FinalReport:  report,
		Sources:      sources,
		CostUSD:      costUSD,
		TokensUsed:   int64(promptTokens + resp.OutputTokens),
		QualityCheck: &quality,
	}, nil
}

func buildSources(sess *state.Session) []state.Source {
	seen := make(map[string]struct{})
	var sources []state.Source
	for _, p := range sess.ScrapedContent {
		if _, ok := seen[p.URL]; ok {
			continue
		}
		seen[p.URL] = struct{}{}
		sources = append(sources, state.Source{
			URL:        p.URL,
			Title:      p.Title,
			AccessedAt: time.Now().UTC(),
			Relevance:  p.QualityScore,
		})
	}
	return sources
}

func buildSynthesisPrompt(sess *state.Session, sources []state.Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a research report answering: %s\n\n", sess.Query)
	sb.WriteString("Required sections, in order: Executive Summary, Key Findings, " +
		"Detailed Analysis, Technical Considerations, Sources, Methodology. " +
		"Use Markdown headings (##). Cite sources inline as [N] referencing the " +
		"numbered list below.\n\n")

	for _, s := range sess.Summaries {
		fmt.Fprintf(&sb, "## Sub-question %d findings\n%s\n", s.SubQuestionID, s.Text)
		for _, f := range s.KeyFindings {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Sources:\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s — %s\n", i+1, src.Title, src.URL)
	}

	return sb.String()
}

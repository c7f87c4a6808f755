package scrape_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepresearch-labs/agent/pkg/scrape"
)

func TestScoreQualityFavorsLongerContent(t *testing.T) {
	thin := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 5})
	long := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 400})
	assert.Less(t, thin, long)
}

func TestScoreQualityPenalizesHighLinkDensity(t *testing.T) {
	low := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 200, LinkDensity: 0.05})
	high := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 200, LinkDensity: 0.8})
	assert.Greater(t, low, high)
}

func TestScoreQualityPenalizesBoilerplate(t *testing.T) {
	clean := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 200, BoilerplateRatio: 0})
	boilerplatey := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 200, BoilerplateRatio: 0.9})
	assert.Greater(t, clean, boilerplatey)
}

func TestScoreQualityIgnoresMissingDensityAndSentenceSignals(t *testing.T) {
	withExtras := scrape.ScoreQuality(scrape.QualitySignals{
		WordCount: 200, HasDensity: true, ContentDensity: 0.3, HasSentences: true, SentenceLength: 18,
	})
	withoutExtras := scrape.ScoreQuality(scrape.QualitySignals{WordCount: 200})
	// Both should land in the same high range: missing dimensions are
	// excluded from the average, not treated as a zero score.
	assert.InDelta(t, withExtras, withoutExtras, 0.2)
}

func TestExtractSentencesFromRealProseScoresHigherThanRunOn(t *testing.T) {
	prose := strings.Repeat("This is an ordinary sentence of reasonable length for a news article. ", 10)
	runOn := strings.Repeat("word ", 140)

	proseScore := scrape.ScoreQuality(mustAnalyze(t, prose))
	runOnScore := scrape.ScoreQuality(mustAnalyze(t, runOn))
	assert.Greater(t, proseScore, runOnScore)
}

// mustAnalyze builds the QualitySignals a real page with this content
// would produce, without needing raw HTML or a network round trip.
func mustAnalyze(t *testing.T, content string) scrape.QualitySignals {
	t.Helper()
	words := len(strings.Fields(content))
	sentences := strings.Count(content, ". ") + 1
	return scrape.QualitySignals{
		WordCount:      words,
		HasSentences:   true,
		SentenceLength: float64(words) / float64(sentences),
	}
}

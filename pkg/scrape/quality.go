package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// QualitySignals are the inputs ScoreQuality combines: the same
// dimensions extraction quality is commonly judged on, rather than
// word count alone.
type QualitySignals struct {
	WordCount        int
	LinkDensity      float64 // fraction of extracted words that sit inside <a> tags
	BoilerplateRatio float64 // fraction of words matching nav/legal/ad vocabulary
	ContentDensity   float64 // len(extracted content) / len(raw HTML)
	HasDensity       bool    // false when the caller had no raw HTML to compare against
	SentenceLength   float64 // average words per sentence
	HasSentences     bool    // false when content had no sentence-ending punctuation
}

var boilerplatePhrases = []string{
	"cookie", "cookies", "subscribe", "subscription", "newsletter",
	"sign in", "log in", "all rights reserved", "terms of service",
	"privacy policy", "advertisement", "sponsored", "related articles",
	"share this", "follow us",
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+(\s|$)`)

// analyzeQuality derives QualitySignals from a page's raw HTML (for
// link density and content density) and its extracted plain text
// (everything else). rawHTML may be empty when the caller has no
// access to the original markup.
func analyzeQuality(rawHTML, content string) QualitySignals {
	words := strings.Fields(content)
	s := QualitySignals{
		WordCount:        len(words),
		LinkDensity:      linkDensity(rawHTML, len(words)),
		BoilerplateRatio: boilerplateRatio(words),
	}
	if rawHTML != "" {
		s.HasDensity = true
		s.ContentDensity = float64(len(content)) / float64(len(rawHTML))
	}
	if avg, ok := sentenceLength(content); ok {
		s.HasSentences = true
		s.SentenceLength = avg
	}
	return s
}

func linkDensity(rawHTML string, totalWords int) float64 {
	if rawHTML == "" || totalWords == 0 {
		return 0
	}
	linkWords := 0
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	inLink := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return clamp01(float64(linkWords) / float64(totalWords))
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				inLink = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				inLink = false
			}
		case html.TextToken:
			if inLink {
				linkWords += len(strings.Fields(string(z.Text())))
			}
		}
	}
}

func boilerplateRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(strings.Join(words, " "))
	hits := 0
	for _, phrase := range boilerplatePhrases {
		hits += strings.Count(lower, phrase)
	}
	// a handful of boilerplate phrases already dominates a short page,
	// so scale up before clamping rather than requiring hits on the
	// order of the whole word count.
	return clamp01(float64(hits) / float64(len(words)) * 10)
}

func sentenceLength(content string) (avgWords float64, ok bool) {
	var sentences []string
	for _, s := range sentenceBoundary.Split(strings.TrimSpace(content), -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return 0, false
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.Fields(s))
	}
	return float64(total) / float64(len(sentences)), true
}

// ScoreQuality combines word count, link density, boilerplate ratio,
// content density against raw HTML, and average sentence length into
// a single [0,1] score. Dimensions the caller couldn't supply (no raw
// HTML, no sentence punctuation) are left out of the weighted average
// instead of penalizing the page for missing data.
func ScoreQuality(s QualitySignals) float64 {
	const wordTarget = 200.0
	wordScore := clamp01(float64(s.WordCount) / wordTarget)
	linkScore := clamp01(1 - s.LinkDensity*3)
	boilerScore := clamp01(1 - s.BoilerplateRatio)

	weight := 0.4 + 0.15 + 0.15
	total := 0.4*wordScore + 0.15*linkScore + 0.15*boilerScore

	if s.HasDensity {
		weight += 0.15
		total += 0.15 * densityScore(s.ContentDensity)
	}
	if s.HasSentences {
		weight += 0.15
		total += 0.15 * sentenceScore(s.SentenceLength)
	}
	if weight == 0 {
		return 0
	}
	return clamp01(total / weight)
}

// densityScore favors pages where the extracted text is a meaningful
// but not total fraction of the raw document: too low usually means
// the page is mostly chrome/ads around a stub of content, too high
// usually means the "extraction" just dumped the raw response.
func densityScore(d float64) float64 {
	switch {
	case d < 0.05:
		return clamp01(d / 0.05)
	case d <= 0.5:
		return 1
	default:
		return clamp01(1 - (d-0.5)/0.5)
	}
}

// sentenceScore favors an average sentence length in the range of
// ordinary prose; both telegraphic nav text and run-on unpunctuated
// dumps score lower.
func sentenceScore(avg float64) float64 {
	switch {
	case avg <= 0:
		return 0
	case avg < 8:
		return clamp01(avg / 8)
	case avg <= 30:
		return 1
	default:
		return clamp01(30 / avg)
	}
}

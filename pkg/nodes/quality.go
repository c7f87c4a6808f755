package nodes

import (
	"regexp"
	"strings"

	"github.com/deepresearch-labs/agent/pkg/state"
)

const minSubtopicCoverage = 0.8

var (
	requiredSections = []string{"executive summary", "findings", "sources"}
	citationPattern  = regexp.MustCompile(`\[(?:Source\s+)?(\d+)\]`)
	headingPattern   = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)
)

// CheckReportQuality runs the advisory post-Synthesize checks: required
// sections, citation presence, and subtopic coverage. It never fails the
// session — the caller attaches the result to report metadata.
func CheckReportQuality(report string, subQuestions []state.SubQuestion) state.QualityResult {
	if strings.TrimSpace(report) == "" {
		return state.QualityResult{MissingSections: requiredSectionNames()}
	}

	wordCount := len(strings.Fields(report))
	headings := foundHeadings(report)

	var missing []string
	for _, section := range requiredSections {
		if !hasSection(headings, section) {
			missing = append(missing, sectionDisplayName(section))
		}
	}

	citationCount := countCitations(report)
	coverage := subtopicCoverage(report, subQuestions)

	passed := len(missing) == 0 && citationCount > 0 && coverage >= minSubtopicCoverage

	return state.QualityResult{
		Passed:           passed,
		WordCount:        wordCount,
		MissingSections:  missing,
		CitationCount:    citationCount,
		SubtopicCoverage: coverage,
	}
}

func requiredSectionNames() []string {
	names := make([]string, len(requiredSections))
	for i, s := range requiredSections {
		names[i] = sectionDisplayName(s)
	}
	return names
}

func sectionDisplayName(section string) string {
	switch section {
	case "executive summary":
		return "Executive Summary"
	case "findings":
		return "Findings"
	case "sources":
		return "Sources"
	}
	return section
}

func foundHeadings(report string) map[string]struct{} {
	headings := make(map[string]struct{})
	for _, m := range headingPattern.FindAllStringSubmatch(report, -1) {
		headings[strings.ToLower(strings.TrimSpace(m[1]))] = struct{}{}
	}
	return headings
}

func hasSection(headings map[string]struct{}, section string) bool {
	for h := range headings {
		if strings.Contains(h, section) {
			return true
		}
	}
	return false
}

func countCitations(report string) int {
	seen := make(map[string]struct{})
	for _, m := range citationPattern.FindAllStringSubmatch(report, -1) {
		seen[m[1]] = struct{}{}
	}
	return len(seen)
}

// subtopicCoverage reports the fraction of sub-questions for which at
// least 40% of the question's significant (3+ char) words appear in the
// report, case-insensitively.
func subtopicCoverage(report string, subQuestions []state.SubQuestion) float64 {
	if len(subQuestions) == 0 {
		return 1.0
	}
	reportLower := strings.ToLower(report)

	covered := 0
	for _, sq := range subQuestions {
		words := significantWords(sq.Question)
		if len(words) == 0 {
			covered++
			continue
		}
		matches := 0
		for _, w := range words {
			if strings.Contains(reportLower, w) {
				matches++
			}
		}
		if float64(matches)/float64(len(words)) >= 0.4 {
			covered++
		}
	}
	return float64(covered) / float64(len(subQuestions))
}

// Package state defines the research pipeline's typed, append-only
// session state and the reducer table the graph scheduler uses to merge
// each node's partial result back in.
package state

import "time"

// Status is the lifecycle of a session record (distinct from the pipeline
// step cursor below — this is the admission-layer status the session
// manager and API surface report).
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"

	// StatusCompletedWithWarnings is a successful run that still needs
	// the caller's attention — e.g. scrape found zero usable pages and
	// the run ended with no findings to synthesize.
	StatusCompletedWithWarnings Status = "COMPLETED_WITH_WARNINGS"
)

// SubQuestion is one entry produced once by Plan.
type SubQuestion struct {
	ID        int    `json:"id"`
	Question  string `json:"question"`
	Rationale string `json:"rationale"`
}

// SearchResult is one append-only entry in Session.SearchResults.
type SearchResult struct {
	SubQuestionID int     `json:"sub_question_id"`
	Query         string  `json:"query"`
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
}

// ScrapedPage is one append-only entry in Session.ScrapedContent.
type ScrapedPage struct {
	URL           string  `json:"url"`
	SubQuestionID int     `json:"sub_question_id"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	WordCount     int     `json:"word_count"`
	QualityScore  float64 `json:"quality_score"`
}

// Summary is one append-only entry in Session.Summaries.
type Summary struct {
	SubQuestionID int      `json:"sub_question_id"`
	Text          string   `json:"summary"`
	SourceURLs    []string `json:"source_urls"`
	KeyFindings   []string `json:"key_findings"`
}

// Source is one append-only entry in Session.Sources.
type Source struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	AccessedAt time.Time `json:"accessed_at"`
	Relevance  float64   `json:"relevance"`
}

// ErrorLogEntry is one append-only entry in Session.ErrorLog.
type ErrorLogEntry struct {
	Step        string `json:"step"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// DeadLetterEntry records an irrecoverable node failure.
type DeadLetterEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
}

// RecoveryMetrics accumulates the counters the recovery orchestrator
// reports into ReportMetadata.
type RecoveryMetrics struct {
	RetriesAttempted     int `json:"retries_attempted"`
	RecoveredFailures    int `json:"recovered_failures"`
	RetryExhausted       int `json:"retry_exhausted"`
	CircuitBreakerOpened int `json:"circuit_breaker_opened"`
	CircuitBreakerSkips  int `json:"circuit_breaker_skips"`
	DeadLetterCount      int `json:"dead_letter_count"`
}

// ReportMetadata is the scalar map of cost totals, recovery metrics, and
// the dead-letter queue attached to the final report.
type ReportMetadata struct {
	CostUSD         float64           `json:"cost_usd"`
	TokensUsed      int64             `json:"tokens_used"`
	Recovery        RecoveryMetrics   `json:"recovery"`
	DeadLetterQueue []DeadLetterEntry `json:"dead_letter_queue"`
	QualityCheck    *QualityResult    `json:"quality_check,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// QualityResult is the advisory result of the post-Synthesize quality
// check.
type QualityResult struct {
	Passed           bool     `json:"passed"`
	WordCount        int      `json:"word_count"`
	MissingSections  []string `json:"missing_sections"`
	CitationCount    int      `json:"citation_count"`
	SubtopicCoverage float64  `json:"subtopic_coverage"`
}

// Session is the pipeline's append-only state. Every field is
// either scalar-replaced or list-appended per the reducer table in
// reducers.go; nodes never mutate it directly — they return a Delta and
// the graph scheduler merges it.
type Session struct {
	ID    string `json:"id"`
	Query string `json:"query"`

	// BudgetUSD overrides the process-wide max_cost_per_run for this
	// session when set, via POST /api/sessions body `budget?`.
	BudgetUSD    float64 `json:"budget_usd,omitempty"`
	OutputFormat string  `json:"output_format"` // "md" or "pdf"

	Step      string `json:"step"`
	StepIndex int    `json:"step_index"`

	SubQuestions          []SubQuestion `json:"sub_questions"`
	CurrentSubtopicIndex  int           `json:"current_subtopic_index"`

	SearchResults    []SearchResult `json:"search_results"`
	SeenURLs         []string       `json:"seen_urls"`
	ScrapedContent   []ScrapedPage  `json:"scraped_content"`
	Summaries        []Summary      `json:"summaries"`
	FinalReport      string         `json:"final_report"`
	Sources          []Source       `json:"sources"`
	ErrorLog         []ErrorLogEntry `json:"error_log"`
	SearchRetryCount int            `json:"search_retry_count"`

	ReportMetadata ReportMetadata `json:"report_metadata"`

	Status         Status  `json:"status"`
	Progress       int     `json:"progress"`
	CostUSD        float64 `json:"cost_usd"`
	TokensUsed     int64   `json:"tokens_used"`
	QueuedPosition *int    `json:"queued_position,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Delta is the partial state a node returns; only non-zero / non-nil
// fields are considered by the reducer table (see reducers.go).
type Delta struct {
	Step      string
	StepIndex int

	SubQuestions         []SubQuestion
	CurrentSubtopicIndex *int

	SearchResults    []SearchResult
	SeenURLs         []string
	ScrapedContent   []ScrapedPage
	Summaries        []Summary
	FinalReport      string
	Sources          []Source
	ErrorLog         []ErrorLogEntry
	SearchRetryCount *int

	CostUSD    float64
	TokensUsed int64

	Recovery        *RecoveryMetrics
	DeadLetterQueue []DeadLetterEntry
	QualityCheck    *QualityResult
}

// NewSession constructs the initial state the session manager hands to the
// graph scheduler on admission, with OutputFormat defaulted to "md".
// Callers that accept a budget/output_format override set
// BudgetUSD/OutputFormat directly afterward — see session.Manager.Create.
func NewSession(id, query string) *Session {
	return &Session{
		ID:           id,
		Query:        query,
		OutputFormat: "md",
		Status:       StatusQueued,
	}
}

// Clone returns a deep-enough copy for safe handoff across goroutine
// boundaries (event payloads, API responses).
func (s *Session) Clone() *Session {
	c := *s
	c.SubQuestions = append([]SubQuestion(nil), s.SubQuestions...)
	c.SearchResults = append([]SearchResult(nil), s.SearchResults...)
	c.SeenURLs = append([]string(nil), s.SeenURLs...)
	c.ScrapedContent = append([]ScrapedPage(nil), s.ScrapedContent...)
	c.Summaries = append([]Summary(nil), s.Summaries...)
	c.Sources = append([]Source(nil), s.Sources...)
	c.ErrorLog = append([]ErrorLogEntry(nil), s.ErrorLog...)
	c.ReportMetadata.DeadLetterQueue = append([]DeadLetterEntry(nil), s.ReportMetadata.DeadLetterQueue...)
	return &c
}

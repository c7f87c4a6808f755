package scrape

import "regexp"

type weightedPattern struct {
	name    string
	pattern *regexp.Regexp
	weight  float64
}

// paywallPatterns are phrases that commonly appear on gated articles,
// each weighted by how strongly it alone implies a paywall.
var paywallPatterns = []weightedPattern{
	{"subscription_required", regexp.MustCompile(`(?i)subscribe\s+to\s+(read|continue|access|unlock)`), 3.0},
	{"continue_reading_subscribe", regexp.MustCompile(`(?i)to\s+continue\s+reading.{0,40}subscribe`), 2.5},
	{"remaining_articles", regexp.MustCompile(`(?i)\d+\s+(free\s+)?articles?\s+remaining`), 2.5},
	{"metered_limit", regexp.MustCompile(`(?i)you('ve| have)\s+(read|reached)\s+(your|the)\s+(free\s+)?(article\s+)?limit`), 2.5},
	{"paywall_class", regexp.MustCompile(`(?i)class\s*=\s*["'][^"']*paywall[^"']*["']`), 2.5},
	{"paywall_id", regexp.MustCompile(`(?i)id\s*=\s*["'][^"']*paywall[^"']*["']`), 2.5},
	{"unlock_article", regexp.MustCompile(`(?i)unlock\s+this\s+article`), 2.0},
	{"premium_content", regexp.MustCompile(`(?i)premium\s+(content|article|subscriber)`), 2.0},
	{"sign_in_to_continue", regexp.MustCompile(`(?i)sign\s+in\s+to\s+(continue|read|access)`), 2.0},
	{"paid_content_class", regexp.MustCompile(`(?i)class\s*=\s*["'][^"']*(subscriber|premium|locked)[^"']*["']`), 2.0},
	{"subscriber_exclusive", regexp.MustCompile(`(?i)subscriber[\s-]exclusive`), 2.0},
	{"register_to_continue", regexp.MustCompile(`(?i)register\s+to\s+(continue|read|access)`), 1.5},
	{"members_only", regexp.MustCompile(`(?i)members?[\s-]only`), 1.5},
	{"exclusive_for_subscribers", regexp.MustCompile(`(?i)exclusive\s+(content|access)\s+for\s+(subscribers|members)`), 1.5},
	{"free_trial", regexp.MustCompile(`(?i)start\s+your\s+free\s+trial`), 1.5},
	{"already_subscriber", regexp.MustCompile(`(?i)already\s+a\s+subscriber`), 1.5},
	{"article_preview", regexp.MustCompile(`(?i)this\s+is\s+a\s+preview`), 1.5},
	{"log_in_to_view", regexp.MustCompile(`(?i)log\s+in\s+to\s+view`), 1.5},
	{"support_our_journalism", regexp.MustCompile(`(?i)support\s+our\s+journalism`), 1.0},
}

// openAccessPatterns are counter-signals: phrases that indicate the
// page is explicitly not gated, reducing confidence in a paywall hit.
var openAccessPatterns = []weightedPattern{
	{"free_to_read", regexp.MustCompile(`(?i)free\s+to\s+read`), 1.5},
	{"open_access", regexp.MustCompile(`(?i)open\s+access`), 1.5},
	{"no_paywall", regexp.MustCompile(`(?i)no\s+paywall`), 2.0},
}

// PaywallResult reports whether a page's markup carries paywall
// signals strong enough to treat the page as unusable.
type PaywallResult struct {
	AdjustedWeight float64
	Confidence     float64
	IsPaywalled    bool
}

// PaywallDetector scores raw HTML against weighted phrase patterns
// commonly present on paywalled articles, counterbalanced by patterns
// that signal open access.
type PaywallDetector struct {
	threshold float64
}

// NewPaywallDetector builds a PaywallDetector. threshold <= 0 falls
// back to 3.0, the point at which two or three mid-weight signals
// already agree the page is gated.
func NewPaywallDetector(threshold float64) *PaywallDetector {
	if threshold <= 0 {
		threshold = 3.0
	}
	return &PaywallDetector{threshold: threshold}
}

// Detect scores rawHTML for paywall signals.
func (d *PaywallDetector) Detect(rawHTML string) PaywallResult {
	var total, open float64
	for _, p := range paywallPatterns {
		if p.pattern.MatchString(rawHTML) {
			total += p.weight
		}
	}
	for _, p := range openAccessPatterns {
		if p.pattern.MatchString(rawHTML) {
			open += p.weight
		}
	}

	adjusted := total - open
	if adjusted < 0 {
		adjusted = 0
	}

	return PaywallResult{
		AdjustedWeight: adjusted,
		Confidence:     clamp01(adjusted / (d.threshold * 2)),
		IsPaywalled:    adjusted >= d.threshold,
	}
}

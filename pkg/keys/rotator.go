// Package keys distributes LLM API calls across multiple keys per
// provider, round-robin, cooling a key down for a window after it hits a
// rate limit instead of hammering it again on the very next call.
package keys

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultCooldown = 60 * time.Second

// multiKeyEnv and singleKeyEnv name the env vars a provider's keys load
// from: the plural var first (comma-separated), the singular var as a
// fallback for a single-key deployment.
var multiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEYS",
	"openai":    "OPENAI_API_KEYS",
	"google":    "GOOGLE_API_KEYS",
}

var singleKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// Rotator hands out API keys round-robin per provider, skipping any key
// currently cooling down from a rate-limit hit.
type Rotator struct {
	cooldown time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	keys      map[string][]string
	next      map[string]int
	coolUntil map[string]time.Time // "<provider>:<index>" -> cooldown deadline
}

// NewRotator builds a Rotator with the given per-key cooldown window. A
// zero cooldown uses the 60s default.
func NewRotator(cooldown time.Duration, log *slog.Logger) *Rotator {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if log == nil {
		log = slog.Default()
	}
	return &Rotator{
		cooldown:  cooldown,
		log:       log,
		keys:      make(map[string][]string),
		next:      make(map[string]int),
		coolUntil: make(map[string]time.Time),
	}
}

func (r *Rotator) loadKeys(provider string) []string {
	if ks, ok := r.keys[provider]; ok {
		return ks
	}

	if multi, ok := multiKeyEnv[provider]; ok {
		if raw := strings.TrimSpace(os.Getenv(multi)); raw != "" {
			var ks []string
			for _, k := range strings.Split(raw, ",") {
				if k = strings.TrimSpace(k); k != "" {
					ks = append(ks, k)
				}
			}
			if len(ks) > 0 {
				r.keys[provider] = ks
				r.log.Info("keys loaded", "provider", provider, "count", len(ks), "source", multi)
				return ks
			}
		}
	}

	if single, ok := singleKeyEnv[provider]; ok {
		if k := strings.TrimSpace(os.Getenv(single)); k != "" {
			r.keys[provider] = []string{k}
			return r.keys[provider]
		}
	}

	r.keys[provider] = nil
	return nil
}

// GetKey returns the next available key for provider, skipping any key in
// cooldown, or "", false if every key is unavailable (or none configured).
func (r *Rotator) GetKey(provider string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ks := r.loadKeys(provider)
	if len(ks) == 0 {
		return "", false
	}

	now := time.Now()
	for i := 0; i < len(ks); i++ {
		idx := r.next[provider] % len(ks)
		r.next[provider] = idx + 1

		key := fmt.Sprintf("%s:%d", provider, idx)
		if until, cooling := r.coolUntil[key]; !cooling || now.After(until) {
			return ks[idx], true
		}
	}

	r.log.Warn("all keys in cooldown", "provider", provider, "count", len(ks))
	return "", false
}

// MarkRateLimited puts key into cooldown for this Rotator's cooldown
// window. A key not currently tracked for provider is a no-op.
func (r *Rotator) MarkRateLimited(provider, apiKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ks := r.loadKeys(provider)
	idx := -1
	for i, k := range ks {
		if k == apiKey {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	key := fmt.Sprintf("%s:%d", provider, idx)
	r.coolUntil[key] = time.Now().Add(r.cooldown)
	r.log.Info("key rate limited", "provider", provider, "key_index", idx, "cooldown", r.cooldown)
}

// Stats is a provider's key-pool snapshot.
type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// Stats reports total/available key counts per provider currently loaded.
func (r *Rotator) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	out := make(map[string]Stats, len(r.keys))
	for provider, ks := range r.keys {
		available := 0
		for i := range ks {
			key := fmt.Sprintf("%s:%d", provider, i)
			if until, cooling := r.coolUntil[key]; !cooling || now.After(until) {
				available++
			}
		}
		out[provider] = Stats{Total: len(ks), Available: available}
	}
	return out
}

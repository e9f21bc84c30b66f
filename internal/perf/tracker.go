// Package perf measures a single generation: time to first token, total
// inference time and throughput.
package perf

import (
	"sync"
	"time"
)

// Metrics is an immutable snapshot of one completed generation.
type Metrics struct {
	TokensPerSecond      float64   `json:"tokens_per_second"`
	FirstTokenLatencyMs  int64     `json:"first_token_latency_ms"`
	TotalInferenceTimeMs int64     `json:"total_inference_time_ms"`
	TotalTokensGenerated int       `json:"total_tokens_generated"`
	LastUpdatedAt        time.Time `json:"last_updated_at"`
}

// Tracker accumulates timestamps and counters for one generation at a time.
// OnToken may be called from the engine's callback goroutine.
type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	t0           time.Time
	firstTokenAt time.Time
	tokenCount   int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start records t0 and clears the first-token mark and token count.
func (t *Tracker) Start() {
	t.mu.Lock()
	t.t0 = t.now()
	t.firstTokenAt = time.Time{}
	t.tokenCount = 0
	t.mu.Unlock()
}

// OnToken counts one non-empty chunk, marking the first one.
func (t *Tracker) OnToken() {
	t.mu.Lock()
	t.tokenCount++
	if t.firstTokenAt.IsZero() {
		t.firstTokenAt = t.now()
	}
	t.mu.Unlock()
}

// TokenCount returns the chunks counted since Start.
func (t *Tracker) TokenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokenCount
}

// FirstTokenSeen reports whether OnToken ran since Start.
func (t *Tracker) FirstTokenSeen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.firstTokenAt.IsZero()
}

// Finish computes the snapshot for the current generation.
func (t *Tracker) Finish() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	end := t.now()
	total := end.Sub(t.t0).Milliseconds()
	if total < 0 {
		total = 0
	}
	var ttft int64
	if !t.firstTokenAt.IsZero() {
		ttft = t.firstTokenAt.Sub(t.t0).Milliseconds()
		if ttft > total {
			ttft = total
		}
	}
	var tps float64
	if total > 0 {
		tps = float64(t.tokenCount) * 1000 / float64(total)
	}
	return Metrics{
		TokensPerSecond:      tps,
		FirstTokenLatencyMs:  ttft,
		TotalInferenceTimeMs: total,
		TotalTokensGenerated: t.tokenCount,
		LastUpdatedAt:        end,
	}
}

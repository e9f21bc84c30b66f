package session

import (
	"sessiond/internal/perf"
)

// State represents the lifecycle state of the controller.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateError      State = "error"
)

// Acceleration selects the engine backend a model runs on.
type Acceleration string

const (
	AccelCPU Acceleration = "cpu"
	AccelGPU Acceleration = "gpu"
)

// ParseAcceleration maps user input to an Acceleration. Empty means CPU.
func ParseAcceleration(s string) (Acceleration, error) {
	switch Acceleration(s) {
	case "", AccelCPU:
		return AccelCPU, nil
	case AccelGPU:
		return AccelGPU, nil
	default:
		return "", invalidConfigf("unknown acceleration %q (expected cpu or gpu)", s)
	}
}

// ModelConfig is the immutable sampling/backend configuration supplied on every
// load, reset and generate call.
type ModelConfig struct {
	Acceleration Acceleration `json:"acceleration" validate:"omitempty,oneof=cpu gpu"`
	Temperature  float64      `json:"temperature" validate:"gte=0,lte=1"`
	TopK         int          `json:"top_k" validate:"gt=0"`
	TopP         float64      `json:"top_p" validate:"gte=0,lte=1"`
	MaxTokens    int          `json:"max_tokens" validate:"gt=0"`
}

// DefaultModelConfig mirrors typical on-device chat defaults.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Acceleration: AccelCPU, Temperature: 0.8, TopK: 40, TopP: 0.95, MaxTokens: 1024}
}

// Backend is the acceleration the config selects; empty means cpu.
func (c ModelConfig) Backend() Acceleration {
	if c.Acceleration == "" {
		return AccelCPU
	}
	return c.Acceleration
}

func (c ModelConfig) params() InferParams {
	return InferParams{
		Temperature: float32(c.Temperature),
		TopK:        c.TopK,
		TopP:        float32(c.TopP),
		MaxTokens:   c.MaxTokens,
	}
}

// FollowUpProfile caps sampling for non-first turns, trading diversity for
// determinism. Each cap applies as min(base, cap).
type FollowUpProfile struct {
	Temperature float64
	TopK        int
	TopP        float64
}

// Apply returns cfg with the profile caps applied.
func (p FollowUpProfile) Apply(cfg ModelConfig) ModelConfig {
	if p.Temperature > 0 && cfg.Temperature > p.Temperature {
		cfg.Temperature = p.Temperature
	}
	if p.TopK > 0 && cfg.TopK > p.TopK {
		cfg.TopK = p.TopK
	}
	if p.TopP > 0 && cfg.TopP > p.TopP {
		cfg.TopP = p.TopP
	}
	return cfg
}

// EventKind tags a StreamEvent.
type EventKind string

const (
	EventPartial EventKind = "partial"
	EventDone    EventKind = "done"
)

// Outcome records why a generation terminated.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeFirstTokenTimeout Outcome = "first_token_timeout"
	OutcomeTotalTimeout      Outcome = "total_timeout"
	OutcomeStall             Outcome = "stall"
	OutcomeFault             Outcome = "fault"
	OutcomeCanceled          Outcome = "canceled"
	OutcomeReleased          Outcome = "released"
)

// StreamEvent is either a partial text chunk or the single terminal event.
// Done carries Metrics only for a completed generation; Err is set for faults.
type StreamEvent struct {
	Kind    EventKind
	Text    string
	Metrics *perf.Metrics
	Reason  Outcome
	Err     error
}

// Partial builds a partial event.
func Partial(text string) StreamEvent { return StreamEvent{Kind: EventPartial, Text: text} }

// IsDone reports whether ev is the terminal event.
func (ev StreamEvent) IsDone() bool { return ev.Kind == EventDone }

// Snapshot is a read-only projection of the controller state.
type Snapshot struct {
	State        State
	ModelPath    string
	Acceleration Acceleration
	HasSession   bool
	Err          string
}

package types

// ModelConfig carries sampling and backend settings on every call that needs them.
// Omitted fields fall back to the server defaults.
type ModelConfig struct {
	// Backend to run on: cpu or gpu.
	// example: cpu
	Acceleration string `json:"acceleration,omitempty" example:"cpu"`
	// Sampling temperature in [0,1].
	// example: 0.8
	Temperature *float64 `json:"temperature,omitempty" example:"0.8"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Nucleus sampling probability in [0,1].
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Token budget for context plus reply.
	// example: 1024
	MaxTokens int `json:"max_tokens,omitempty" example:"1024"`
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	// Path of the model file. Empty uses the server default.
	// example: /home/user/models/gemma-2b-it-q4.gguf
	Path   string       `json:"path,omitempty" example:"/home/user/models/gemma-2b-it-q4.gguf"`
	Config *ModelConfig `json:"config,omitempty"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Required prompt text.
	// example: What about 3+3?
	Prompt string `json:"prompt" example:"What about 3+3?"`
	// Prior turns, alternating user then assistant text.
	// example: ["What is 2+2?","2+2 equals 4."]
	History []string     `json:"history,omitempty"`
	Config  *ModelConfig `json:"config,omitempty"`
}

// ResetRequest is the body of POST /reset.
type ResetRequest struct {
	Config *ModelConfig `json:"config,omitempty"`
}

// Metrics mirrors the latency/throughput snapshot of one generation.
type Metrics struct {
	// example: 12.5
	TokensPerSecond float64 `json:"tokens_per_second" example:"12.5"`
	// example: 420
	FirstTokenLatencyMs int64 `json:"first_token_latency_ms" example:"420"`
	// example: 3100
	TotalInferenceTimeMs int64 `json:"total_inference_time_ms" example:"3100"`
	// example: 38
	TotalTokensGenerated int `json:"total_tokens_generated" example:"38"`
	// Unix milliseconds of the snapshot.
	// example: 1700000000000
	LastUpdatedUnixMs int64 `json:"last_updated_unix_ms" example:"1700000000000"`
}

// StreamEvent is one NDJSON line of POST /generate.
// Partial lines carry text; the final line has done=true and metrics only on success.
type StreamEvent struct {
	Text    string   `json:"text,omitempty"`
	Done    bool     `json:"done,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ModesResponse is returned by GET /modes.
type ModesResponse struct {
	// example: ["cpu","gpu"]
	Modes []string `json:"modes"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Controller state: unloaded, loading, ready, generating, error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Loaded model file, if any.
	ModelPath string `json:"model_path,omitempty"`
	// Backend of the loaded model.
	// example: cpu
	Acceleration string `json:"acceleration,omitempty" example:"cpu"`
	// Whether a session handle is currently held.
	HasSession bool `json:"has_session"`
	// Last error observed by the controller (if any).
	Error string `json:"error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Generations terminated so far, any outcome.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
	// Successful session (re)creations.
	// example: 13
	SessionResetsTotal uint64   `json:"session_resets_total" example:"13"`
	LastMetrics        *Metrics `json:"last_metrics,omitempty"`
}

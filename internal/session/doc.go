// Package session provides the inference-session lifecycle controller: model
// and session handle ownership, streaming generation with timeout
// supervision, recovery, and per-generation metrics. It is structured into
// small files by concern:
//
//   - controller.go: core Controller type, getters, logging/event helpers.
//   - config.go: ControllerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: State, Acceleration, ModelConfig, StreamEvent, Snapshot.
//   - errors.go: LoadError, SessionError, sentinels and IsXxx helpers.
//   - engine.go: Engine/ModelHandle/SessionHandle interfaces.
//   - slot.go: the single-writer cell holding the current session handle.
//   - load.go: LoadModel and model file checks.
//   - reset.go: ResetSession with one bounded retry.
//   - generate.go: GenerateResponse and the per-call supervisor (timers,
//     stall-breaker, single terminal event).
//   - stream.go: Stream and the non-blocking event queue.
//   - release.go, modes.go, status_report.go: remaining operations.
//
// Engines:
//
//   - In-process llama (engine_llama.go): go-llama.cpp, enabled with
//     `-tags=llama`. A no-CGO stub is compiled otherwise.
//   - llama.cpp server (engine_server.go): OpenAI-compatible streaming over HTTP.
//
// State machine: unloaded -> loading -> ready <-> generating; ready -> error on
// session failure; error -> ready through a successful ResetSession.
package session

package session

import "context"

// Engine abstracts the native inference runtime used by the Controller.
// Concrete implementations (llama.cpp in-process, llama.cpp server) satisfy it.
type Engine interface {
	// LoadModel loads model weights from path onto the given backend.
	LoadModel(path string, accel Acceleration) (ModelHandle, error)
	// ProbeGPU returns nil when the GPU backend is usable.
	ProbeGPU() error
}

// ModelHandle represents loaded weights. Sessions are created from it.
type ModelHandle interface {
	NewSession(params InferParams) (SessionHandle, error)
	Close() error
}

// SessionHandle is one live generation context. It is owned by exactly one
// Controller and is never used by two writers at once.
type SessionHandle interface {
	// AddQueryChunk appends input text to the session.
	AddQueryChunk(text string) error
	// GenerateAsync starts generation over the accumulated input and returns
	// immediately. listener is invoked from an engine goroutine for every
	// chunk; the last invocation has Done or Err set. Implementations must
	// stop calling listener once ctx is canceled.
	GenerateAsync(ctx context.Context, listener ChunkListener) error
	// Close releases native resources and stops any in-flight generation.
	Close() error
}

// Chunk is one engine callback payload.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// ChunkListener receives engine output.
type ChunkListener func(Chunk)

// InferParams captures sampling parameters passed to the engine.
type InferParams struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	Stop          []string
	Seed          int
	RepeatPenalty float32
}

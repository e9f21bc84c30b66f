//go:build llama

package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine holds global config used to initialize model handles.
type llamaEngine struct {
	ctxSize   int
	threads   int
	gpuLayers int
	libDir    string
}

// NewLlamaEngine returns the in-process go-llama.cpp engine. gpuLayers is
// the number of layers offloaded in GPU mode; libDir is where ggml backend
// libraries live (empty means next to the executable).
func NewLlamaEngine(ctxSize, threads, gpuLayers int, libDir string) Engine {
	return &llamaEngine{ctxSize: ctxSize, threads: threads, gpuLayers: gpuLayers, libDir: libDir}
}

func (e *llamaEngine) LoadModel(path string, accel Acceleration) (ModelHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(zn(e.ctxSize, 2048)),
	}
	if accel == AccelGPU {
		mo = append(mo, llama.SetGPULayers(zn(e.gpuLayers, 99)))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaModel{model: m, threads: e.threads}, nil
}

func (e *llamaEngine) ProbeGPU() error { return probeGPULibs(e.libDir) }

// llamaModel owns the loaded weights. go-llama.cpp is not safe for
// concurrent Predict calls, so predictMu serializes sessions on one model.
type llamaModel struct {
	predictMu sync.Mutex
	model     *llama.LLama
	threads   int
}

func (m *llamaModel) NewSession(params InferParams) (SessionHandle, error) {
	m.predictMu.Lock()
	defer m.predictMu.Unlock()
	if m.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	return &llamaSession{m: m, params: params}, nil
}

// Close waits for any in-flight predict to observe cancellation, then frees.
func (m *llamaModel) Close() error {
	m.predictMu.Lock()
	defer m.predictMu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

// llamaSession accumulates input and runs one predict per GenerateAsync.
type llamaSession struct {
	m      *llamaModel
	params InferParams

	mu     sync.Mutex
	input  strings.Builder
	cancel context.CancelFunc
	closed bool
}

func (s *llamaSession) AddQueryChunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	s.input.WriteString(text)
	return nil
}

func (s *llamaSession) GenerateAsync(ctx context.Context, listener ChunkListener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	prompt := s.input.String()
	s.mu.Unlock()

	go func() {
		defer cancel()
		s.m.predictMu.Lock()
		defer s.m.predictMu.Unlock()
		if s.m.model == nil {
			listener(Chunk{Err: errors.New("llama model not initialized")})
			return
		}
		// Bridge token streaming to the listener and respect cancellation
		s.m.model.SetTokenCallback(func(tok string) bool {
			select {
			case <-sctx.Done():
				return false
			default:
			}
			listener(Chunk{Text: tok})
			return true
		})
		_, err := s.m.model.Predict(prompt, mapInferParamsToPredictOptions(s.params, s.m.threads)...)
		if sctx.Err() != nil {
			return
		}
		if err != nil {
			listener(Chunk{Err: err})
			return
		}
		listener(Chunk{Done: true})
	}()
	return nil
}

func (s *llamaSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mapInferParamsToPredictOptions converts our params into go-llama.cpp options.
func mapInferParamsToPredictOptions(params InferParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(params.Temperature),
		llama.SetPenalty(zf(params.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}

//go:build !llama

package session

// This file provides a no-CGO stub for the llama engine. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

// llamaBuilt indicates this binary was compiled without llama support.
var llamaBuilt = false

type llamaEngine struct{}

// NewLlamaEngine returns an engine that refuses to load models.
func NewLlamaEngine(ctxSize, threads, gpuLayers int, libDir string) Engine {
	return llamaEngine{}
}

func (llamaEngine) LoadModel(path string, accel Acceleration) (ModelHandle, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (llamaEngine) ProbeGPU() error {
	return ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

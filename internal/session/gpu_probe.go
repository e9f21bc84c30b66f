package session

import (
	"fmt"
	"os"
	"path/filepath"

	"sessiond/internal/common/fsutil"
)

// gpuBackendLibs are ggml GPU backend libraries; any one present means the
// llama runtime was built with GPU offload.
var gpuBackendLibs = []string{
	"libggml-cuda.so",
	"libggml-vulkan.so",
	"libggml-metal.dylib",
	"libggml-hip.so",
}

// probeGPULibs looks for a GPU backend library in dir, defaulting to the
// executable's directory (the cgo rpath).
func probeGPULibs(dir string) error {
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		dir = filepath.Dir(exe)
	}
	for _, lib := range gpuBackendLibs {
		if fsutil.PathExists(filepath.Join(dir, lib)) {
			return nil
		}
	}
	return fmt.Errorf("no gpu backend library in %s", dir)
}

// LlamaBuilt reports whether the in-process llama engine is compiled in.
func LlamaBuilt() bool { return llamaBuilt }

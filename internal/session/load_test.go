package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ReadyWithSession(t *testing.T) {
	c, fe := newLoaded(t, ControllerConfig{})
	if c.State() != StateReady {
		t.Fatalf("expected ready, got %s", c.State())
	}
	snap := c.Snapshot()
	if !snap.HasSession || snap.Acceleration != AccelCPU || snap.ModelPath == "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if fe.sessionCount() != 1 {
		t.Fatalf("expected one session, got %d", fe.sessionCount())
	}
}

func TestLoad_FileMissing(t *testing.T) {
	c := New(&fakeEngine{})
	err := c.LoadModel(testCtx(t), filepath.Join(t.TempDir(), "nope.gguf"), DefaultModelConfig())
	if !IsFileMissing(err) {
		t.Fatalf("expected file missing, got %v", err)
	}
	if c.State() != StateUnloaded {
		t.Fatalf("expected unloaded, got %s", c.State())
	}
}

func TestLoad_DirectoryIsMissing(t *testing.T) {
	c := New(&fakeEngine{})
	if err := c.LoadModel(testCtx(t), t.TempDir(), DefaultModelConfig()); !IsFileMissing(err) {
		t.Fatalf("expected file missing for directory, got %v", err)
	}
}

func TestLoad_FileTooSmall(t *testing.T) {
	p := filepath.Join(t.TempDir(), "partial.gguf")
	if err := os.WriteFile(p, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	fe := &fakeEngine{}
	c := New(fe)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); !IsFileTooSmall(err) {
		t.Fatalf("expected file too small, got %v", err)
	}
	if len(fe.models) != 0 {
		t.Fatalf("engine must not be touched for undersized files")
	}
	// threshold is configurable
	c = NewWithConfig(ControllerConfig{Engine: fe, MinModelBytes: 2})
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("expected load with low threshold, got %v", err)
	}
}

func TestLoad_EngineRejected(t *testing.T) {
	fe := &fakeEngine{loadErr: errBoom}
	c := New(fe)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	err := c.LoadModel(testCtx(t), p, DefaultModelConfig())
	if !IsEngineRejected(err) || !errors.Is(err, errBoom) {
		t.Fatalf("expected engine rejected wrapping cause, got %v", err)
	}
	if c.State() != StateUnloaded || c.Snapshot().Err == "" {
		t.Fatalf("expected unloaded with error message, got %+v", c.Snapshot())
	}
}

func TestLoad_SessionFailureClosesModel(t *testing.T) {
	fe := &fakeEngine{sessionErrs: []error{errBoom}}
	c := New(fe)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); !IsEngineRejected(err) {
		t.Fatalf("expected engine rejected, got %v", err)
	}
	if len(fe.models) != 1 || !fe.models[0].closed {
		t.Fatalf("model handle must be closed on failed load")
	}
	if c.State() != StateUnloaded {
		t.Fatalf("expected unloaded, got %s", c.State())
	}
}

func TestLoad_GPUProbeFailure(t *testing.T) {
	fe := &fakeEngine{probeErr: errors.New("no gpu")}
	c := New(fe)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	cfg := DefaultModelConfig()
	cfg.Acceleration = AccelGPU
	if err := c.LoadModel(testCtx(t), p, cfg); !IsEngineRejected(err) {
		t.Fatalf("expected engine rejected, got %v", err)
	}
	if len(fe.models) != 0 {
		t.Fatalf("weights must not load after failed probe")
	}
}

func TestLoad_GPUProbePanicIsContained(t *testing.T) {
	fe := &fakeEngine{probePanic: true}
	c := New(fe)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	cfg := DefaultModelConfig()
	cfg.Acceleration = AccelGPU
	if err := c.LoadModel(testCtx(t), p, cfg); !IsEngineRejected(err) {
		t.Fatalf("expected engine rejected, got %v", err)
	}
}

func TestLoad_NoEngineIsDependencyUnavailable(t *testing.T) {
	c := New(nil)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestLoad_WhileReadyIsInvalidState(t *testing.T) {
	c, _ := newLoaded(t, ControllerConfig{})
	p := createModelFile(t, t.TempDir(), "other.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if c.State() != StateReady {
		t.Fatalf("state must be unchanged, got %s", c.State())
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	fe := &fakeEngine{}
	c := New(fe)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.LoadModel(ctx, p, DefaultModelConfig()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if c.State() != StateUnloaded {
		t.Fatalf("expected unloaded, got %s", c.State())
	}
}

func TestLoad_FromErrorReleasesStaleHandles(t *testing.T) {
	c, fe := newLoaded(t, ControllerConfig{})
	fe.mu.Lock()
	fe.sessionErrs = []error{errBoom, errBoom}
	fe.mu.Unlock()
	if err := c.ResetSession(DefaultModelConfig()); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected session unavailable, got %v", err)
	}
	if c.State() != StateError {
		t.Fatalf("expected error state, got %s", c.State())
	}
	p := createModelFile(t, t.TempDir(), "m2.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("load from error: %v", err)
	}
	if !fe.models[0].closed {
		t.Fatalf("stale model must be closed before reloading")
	}
	if c.State() != StateReady || c.Snapshot().ModelPath != p {
		t.Fatalf("unexpected snapshot: %+v", c.Snapshot())
	}
}

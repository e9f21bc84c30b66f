package session

import (
	"errors"
	"testing"
)

func TestRelease_Idempotent(t *testing.T) {
	c, fe := newLoaded(t, ControllerConfig{})
	sess := fe.lastSession()
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if c.State() != StateUnloaded {
		t.Fatalf("expected unloaded, got %s", c.State())
	}
	if !sess.isClosed() || !fe.models[0].closed {
		t.Fatalf("handles must be closed")
	}
	snap := c.Snapshot()
	if snap.HasSession || snap.ModelPath != "" {
		t.Fatalf("unexpected snapshot after release: %+v", snap)
	}
	if _, err := c.GenerateResponse(testCtx(t), "hi", DefaultModelConfig(), nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after release, got %v", err)
	}
}

func TestRelease_UnloadedNoop(t *testing.T) {
	pub := NewMemoryPublisher()
	c := NewWithConfig(ControllerConfig{Engine: &fakeEngine{}, Publisher: pub})
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(pub.Events()) != 0 {
		t.Fatalf("no events expected, got %v", pub.Names())
	}
}

func TestRelease_DuringGeneration(t *testing.T) {
	c, fe := newLoaded(t, ControllerConfig{})
	fe.setScript(silent())
	s, err := c.GenerateResponse(testCtx(t), "hi", DefaultModelConfig(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	done := assertSingleDone(t, collect(t, s))
	if done.Reason != OutcomeReleased {
		t.Fatalf("expected released, got %+v", done)
	}
	if c.State() != StateUnloaded {
		t.Fatalf("expected unloaded, got %s", c.State())
	}
}

func TestRelease_ThenReload(t *testing.T) {
	c, _ := newLoaded(t, ControllerConfig{})
	_ = c.Release()
	p := createModelFile(t, t.TempDir(), "again.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !c.Ready() {
		t.Fatalf("expected ready")
	}
}

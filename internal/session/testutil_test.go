package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// createModelFile creates a file of approximately sizeMB megabytes and returns its path.
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	// write sizeMB megabytes (use 1MiB blocks)
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return p
}

// script drives a fake session's output. It runs on its own goroutine, like a
// native engine callback thread.
type script func(ctx context.Context, emit ChunkListener)

func chunks(texts ...string) script {
	return func(ctx context.Context, emit ChunkListener) {
		for _, t := range texts {
			if ctx.Err() != nil {
				return
			}
			emit(Chunk{Text: t})
		}
		emit(Chunk{Done: true})
	}
}

func silent() script {
	return func(ctx context.Context, emit ChunkListener) { <-ctx.Done() }
}

// fakeEngine is a lightweight in-memory engine used for tests.
type fakeEngine struct {
	mu          sync.Mutex
	loadErr     error
	gpuLoadErr  error
	probeErr    error
	probePanic  bool
	sessionErrs []error
	genErr      error
	genPanic    bool
	run         script

	models   []*fakeModel
	sessions []*fakeSession
	accels   []Acceleration
}

func (e *fakeEngine) LoadModel(path string, accel Acceleration) (ModelHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	if accel == AccelGPU && e.gpuLoadErr != nil {
		return nil, e.gpuLoadErr
	}
	m := &fakeModel{e: e}
	e.models = append(e.models, m)
	e.accels = append(e.accels, accel)
	return m, nil
}

func (e *fakeEngine) ProbeGPU() error {
	if e.probePanic {
		panic("probe crashed")
	}
	return e.probeErr
}

func (e *fakeEngine) setScript(s script) {
	e.mu.Lock()
	e.run = s
	e.mu.Unlock()
}

func (e *fakeEngine) sessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *fakeEngine) lastSession() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

type fakeModel struct {
	e      *fakeEngine
	closed bool
}

func (m *fakeModel) NewSession(params InferParams) (SessionHandle, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if len(m.e.sessionErrs) > 0 {
		err := m.e.sessionErrs[0]
		m.e.sessionErrs = m.e.sessionErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeSession{e: m.e, params: params}
	m.e.sessions = append(m.e.sessions, s)
	return s, nil
}

func (m *fakeModel) Close() error {
	m.e.mu.Lock()
	m.closed = true
	m.e.mu.Unlock()
	return nil
}

type fakeSession struct {
	e      *fakeEngine
	params InferParams

	mu     sync.Mutex
	input  string
	closed bool
}

func (s *fakeSession) AddQueryChunk(text string) error {
	s.mu.Lock()
	s.input += text
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) GenerateAsync(ctx context.Context, listener ChunkListener) error {
	s.e.mu.Lock()
	run, genErr, genPanic := s.e.run, s.e.genErr, s.e.genPanic
	s.e.mu.Unlock()
	if genPanic {
		panic("native crash")
	}
	if genErr != nil {
		return genErr
	}
	if run == nil {
		run = chunks()
	}
	go run(ctx, listener)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

var errBoom = errors.New("boom")

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// newLoaded returns a controller over a fresh fake engine with a loaded model.
func newLoaded(t *testing.T, cfg ControllerConfig) (*Controller, *fakeEngine) {
	t.Helper()
	fe := &fakeEngine{}
	if cfg.Engine == nil {
		cfg.Engine = fe
	} else {
		fe = cfg.Engine.(*fakeEngine)
	}
	c := NewWithConfig(cfg)
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c, fe
}

// collect drains a stream with a deadline.
func collect(t *testing.T, s *Stream) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not terminate; got %d events", len(out))
		}
	}
}

// assertSingleDone checks the terminal-event invariant and returns Done.
func assertSingleDone(t *testing.T, evs []StreamEvent) StreamEvent {
	t.Helper()
	if len(evs) == 0 {
		t.Fatalf("no events")
	}
	dones := 0
	for _, ev := range evs {
		if ev.IsDone() {
			dones++
		}
	}
	if dones != 1 {
		t.Fatalf("expected exactly one done, got %d: %+v", dones, evs)
	}
	last := evs[len(evs)-1]
	if !last.IsDone() {
		t.Fatalf("done is not last: %+v", evs)
	}
	return last
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newFakeLlamaServer serves /v1/models and a streaming /v1/completions that
// emits frags as SSE data lines.
func newFakeLlamaServer(t *testing.T, frags []string, seen *openAICompletionRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"m.gguf"}]}`))
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, f := range frags {
			b, _ := json.Marshal(map[string]any{"object": "text_completion", "choices": []map[string]any{{"text": f}}})
			fmt.Fprintf(w, "data: %s\n\n", b)
			if fl != nil {
				fl.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestServerEngine_EndToEndThroughController(t *testing.T) {
	var seen openAICompletionRequest
	srv := newFakeLlamaServer(t, []string{"He", "llo"}, &seen)
	c := New(NewServerEngine(srv.URL, "", time.Second))
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := c.GenerateResponse(testCtx(t), " Hi ", DefaultModelConfig(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	evs := collect(t, s)
	done := assertSingleDone(t, evs)
	if done.Reason != OutcomeCompleted || done.Metrics.TotalTokensGenerated != 2 {
		t.Fatalf("unexpected done: %+v", done)
	}
	var text strings.Builder
	for _, ev := range evs[:len(evs)-1] {
		text.WriteString(ev.Text)
	}
	if text.String() != "Hello" {
		t.Fatalf("got %q", text.String())
	}
	if seen.Prompt != "Hi" || !seen.Stream || seen.Model != "m.gguf" || seen.TopK != 40 {
		t.Fatalf("unexpected request: %+v", seen)
	}
}

func TestServerEngine_UnreachableIsDependencyUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	e := NewServerEngine(url, "", 200*time.Millisecond)
	if _, err := e.LoadModel("/models/m.gguf", AccelCPU); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestServerEngine_HTTPErrorSurfacesAsChunkErr(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) })
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewServerEngine(srv.URL, "secret", time.Second)
	m, err := e.LoadModel("m.gguf", AccelCPU)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess, _ := m.NewSession(InferParams{MaxTokens: 8})
	_ = sess.AddQueryChunk("hi")
	got := make(chan Chunk, 4)
	if err := sess.GenerateAsync(context.Background(), func(ch Chunk) { got <- ch }); err != nil {
		t.Fatalf("generate: %v", err)
	}
	select {
	case ch := <-got:
		if ch.Err == nil || !strings.Contains(ch.Err.Error(), "503") {
			t.Fatalf("expected http error chunk, got %+v", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk")
	}
}

func TestServerEngine_ForwardsEmptyFragments(t *testing.T) {
	srv := newFakeLlamaServer(t, []string{"", "", "", "x"}, nil)
	c := NewWithConfig(ControllerConfig{Engine: NewServerEngine(srv.URL, "", time.Second), StallChunkLimit: 3})
	p := createModelFile(t, t.TempDir(), "m.gguf", 1)
	if err := c.LoadModel(testCtx(t), p, DefaultModelConfig()); err != nil {
		t.Fatalf("load: %v", err)
	}
	s, _ := c.GenerateResponse(testCtx(t), "hi", DefaultModelConfig(), nil)
	done := assertSingleDone(t, collect(t, s))
	if done.Reason != OutcomeStall {
		t.Fatalf("expected stall from empty fragments, got %+v", done)
	}
}

func TestServerEngine_ProbeGPUFails(t *testing.T) {
	if err := NewServerEngine("http://127.0.0.1:1", "", time.Second).ProbeGPU(); err == nil {
		t.Fatal("expected probe failure")
	}
}

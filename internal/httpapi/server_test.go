package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sessiond/internal/session"
	"sessiond/pkg/types"
)

type mockService struct {
	models   []types.Model
	status   types.StatusResponse
	ready    bool
	modes    []string
	metrics  *types.Metrics
	loadErr  error
	genErr   error
	resetErr error
	loaded   types.LoadRequest
	reset    bool
	released bool
}

func (m *mockService) ListModels() []types.Model    { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) Modes() []string              { return m.modes }
func (m *mockService) LastMetrics() (*types.Metrics, bool) {
	return m.metrics, m.metrics != nil
}
func (m *mockService) Load(ctx context.Context, req types.LoadRequest) error {
	m.loaded = req
	return m.loadErr
}
func (m *mockService) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	if m.genErr != nil {
		return m.genErr
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(types.StreamEvent{Text: "hi"})
	if flush != nil {
		flush()
	}
	_ = enc.Encode(types.StreamEvent{Done: true, Reason: "completed"})
	return nil
}
func (m *mockService) Reset(req types.ResetRequest) error {
	m.reset = true
	return m.resetErr
}
func (m *mockService) Release() error {
	m.released = true
	return nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	w := do(t, NewMux(svc), http.MethodGet, "/models", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestStatusAndModes(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", HasSession: true}, modes: []string{"cpu"}}
	h := NewMux(svc)
	w := do(t, h, http.MethodGet, "/status", "")
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.State != "ready" || !st.HasSession {
		t.Fatalf("unexpected status body: %s", w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/modes", "")
	var modes types.ModesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &modes); err != nil || len(modes.Modes) != 1 || modes.Modes[0] != "cpu" {
		t.Fatalf("unexpected modes body: %s", w.Body.String())
	}
}

func TestGenerationMetrics(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	if w := do(t, h, http.MethodGet, "/metrics/generation", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	svc.metrics = &types.Metrics{TotalTokensGenerated: 5}
	w := do(t, h, http.MethodGet, "/metrics/generation", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_tokens_generated":5`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	h := NewMux(&mockService{ready: true})
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	h = NewMux(&mockService{})
	w := do(t, h, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "not ready") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
}

func TestGenerateStreams(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	sc := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	var lines []types.StreamEvent
	for sc.Scan() {
		var ev types.StreamEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 || lines[0].Text != "hi" || !lines[1].Done {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := NewMux(&mockService{})
	if w := do(t, h, http.MethodPost, "/generate", `{"prompt":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt: status=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/generate", `{"prompt":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt":"hi"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content type: status=%d", w.Code)
	}
}

func TestGenerateBodyLimit(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/generate", `{"prompt":"`+strings.Repeat("x", 64)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"busy", session.ErrAlreadyGenerating, http.StatusConflict},
		{"not_ready", session.ErrNotReady, http.StatusServiceUnavailable},
		{"session_unavailable", &session.SessionError{Attempts: 2, Err: errors.New("x")}, http.StatusServiceUnavailable},
		{"dependency", session.ErrDependencyUnavailable("no engine"), http.StatusServiceUnavailable},
		{"missing", &session.LoadError{Kind: session.FileMissing, Path: "/m"}, http.StatusNotFound},
		{"too_small", &session.LoadError{Kind: session.FileTooSmall, Path: "/m"}, http.StatusUnprocessableEntity},
		{"rejected", &session.LoadError{Kind: session.EngineRejected, Path: "/m"}, http.StatusBadGateway},
		{"invalid_config", session.ErrInvalidConfig, http.StatusBadRequest},
		{"invalid_state", session.ErrInvalidState, http.StatusConflict},
		{"http_error", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMux(&mockService{genErr: tc.err, loadErr: tc.err})
			w := do(t, h, http.MethodPost, "/generate", `{"prompt":"hi"}`)
			if w.Code != tc.want {
				t.Fatalf("generate: status=%d want %d", w.Code, tc.want)
			}
			var body types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != tc.want || body.Error == "" {
				t.Fatalf("bad error body: %s", w.Body.String())
			}
			if w := do(t, h, http.MethodPost, "/load", `{"path":"m.gguf"}`); w.Code != tc.want {
				t.Fatalf("load: status=%d want %d", w.Code, tc.want)
			}
		})
	}
}

func TestLoadResetRelease(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready"}}
	h := NewMux(svc)
	if w := do(t, h, http.MethodPost, "/load", `{"path":"m.gguf","config":{"acceleration":"gpu"}}`); w.Code != http.StatusOK {
		t.Fatalf("load status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.loaded.Path != "m.gguf" || svc.loaded.Config == nil || svc.loaded.Config.Acceleration != "gpu" {
		t.Fatalf("load request not decoded: %+v", svc.loaded)
	}
	// empty body is accepted for load/reset
	if w := do(t, h, http.MethodPost, "/load", ""); w.Code != http.StatusOK {
		t.Fatalf("empty load status=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/reset", ""); w.Code != http.StatusOK || !svc.reset {
		t.Fatalf("reset status=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/release", ""); w.Code != http.StatusOK || !svc.released {
		t.Fatalf("release status=%d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"http://example.com"}, []string{"GET", "POST"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/status", "")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

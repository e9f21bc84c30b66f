package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// serverEngine implements Engine by talking to a running llama.cpp server over
// its OpenAI-compatible HTTP endpoints.
type serverEngine struct {
	baseURL        string
	apiKey         string
	connectTimeout time.Duration
	httpClient     *http.Client
}

// NewServerEngine constructs a server-backed engine.
func NewServerEngine(baseURL, apiKey string, connectTimeout time.Duration) Engine {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: streaming requests are bounded by the controller's timers
	// through context cancellation.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &serverEngine{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		connectTimeout: connectTimeout,
		httpClient:     cli,
	}
}

func (e *serverEngine) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	return req, nil
}

// LoadModel checks that the server is reachable. The server owns the weights;
// the model is addressed by file name.
func (e *serverEngine) LoadModel(path string, accel Acceleration) (ModelHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.connectTimeout)
	defer cancel()
	req, err := e.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, ErrDependencyUnavailable("llama server unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama server http error: %s: %s", resp.Status, string(b))
	}
	return &serverModel{e: e, modelID: filepath.Base(path)}, nil
}

// ProbeGPU always fails: offload is decided by the remote server's own flags.
func (e *serverEngine) ProbeGPU() error {
	return errors.New("gpu selection is owned by the llama server")
}

type serverModel struct {
	e       *serverEngine
	modelID string
}

func (m *serverModel) NewSession(params InferParams) (SessionHandle, error) {
	return &serverSession{m: m, params: params}, nil
}

func (m *serverModel) Close() error { return nil }

// serverSession accumulates input and streams one completion per GenerateAsync.
type serverSession struct {
	m      *serverModel
	params InferParams

	mu     sync.Mutex
	input  strings.Builder
	cancel context.CancelFunc
	closed bool
}

func (s *serverSession) AddQueryChunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	s.input.WriteString(text)
	return nil
}

func (s *serverSession) GenerateAsync(ctx context.Context, listener ChunkListener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	prompt := s.input.String()
	s.mu.Unlock()

	payload := openAICompletionRequest{
		Model:         s.m.modelID,
		Prompt:        prompt,
		MaxTokens:     s.params.MaxTokens,
		Temperature:   s.params.Temperature,
		TopP:          s.params.TopP,
		TopK:          s.params.TopK,
		Stop:          s.params.Stop,
		Seed:          s.params.Seed,
		Stream:        true,
		RepeatPenalty: s.params.RepeatPenalty,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cancel()
		return err
	}
	req, err := s.m.e.newRequest(sctx, http.MethodPost, "/v1/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return err
	}
	go func() {
		defer cancel()
		err := s.m.e.stream(req, listener)
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

func (s *serverSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// openAICompletionRequest represents the payload for /v1/completions.
type openAICompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stream      bool     `json:"stream"`
	// Non-standard; llama.cpp accepts it, other servers ignore it.
	RepeatPenalty float32 `json:"repeat_penalty,omitempty"`
}

type openAIStreamChoice struct {
	Text  string `json:"text"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Object  string               `json:"object"`
	Choices []openAIStreamChoice `json:"choices"`
}

// stream performs req and forwards every SSE data line as a chunk, empty
// fragments included. It returns nil at [DONE] or end of body.
func (e *serverEngine) stream(req *http.Request, listener ChunkListener) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama server http error: %s: %s", resp.Status, string(b))
	}
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); l != "" && strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				return nil
			}
			var msg openAIStreamResponse
			if jerr := json.Unmarshal([]byte(data), &msg); jerr == nil && len(msg.Choices) > 0 {
				frag := msg.Choices[0].Text
				if frag == "" {
					frag = msg.Choices[0].Delta.Content
				}
				listener(Chunk{Text: frag})
			} else {
				// Some servers stream native objects: {"content": "..."}.
				var generic map[string]any
				if jerr := json.Unmarshal([]byte(data), &generic); jerr == nil {
					tok, _ := generic["content"].(string)
					listener(Chunk{Text: tok})
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Package chat is the thin orchestrator over a session.Controller. It owns the
// conversation history, forwards partial text to the caller and turns settings
// changes into session resets. All lifecycle rules live in the controller.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sessiond/internal/perf"
	"sessiond/internal/session"
)

// Generator is the subset of *session.Controller the orchestrator drives.
type Generator interface {
	GenerateResponse(ctx context.Context, prompt string, cfg session.ModelConfig, history []string) (*session.Stream, error)
	ResetSession(cfg session.ModelConfig) error
	State() session.State
}

// Reply is the outcome of one turn.
type Reply struct {
	Text    string
	Reason  session.Outcome
	Metrics *perf.Metrics
	Err     error
}

// Completed reports whether the turn ended normally.
func (r Reply) Completed() bool { return r.Reason == session.OutcomeCompleted }

// Conversation keeps alternating user/assistant turns for one chat.
type Conversation struct {
	gen Generator
	log zerolog.Logger

	mu      sync.Mutex
	cfg     session.ModelConfig
	history []string
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithLogger sets the logger used for turn events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conversation) { c.log = l.With().Str("component", "chat").Logger() }
}

// New returns an empty conversation using cfg for every turn.
func New(gen Generator, cfg session.ModelConfig, opts ...Option) *Conversation {
	c := &Conversation{gen: gen, cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send runs one turn. Partial text is passed to onPartial as it arrives.
// Synchronous controller errors are returned and leave history unchanged;
// once a stream starts the turn is recorded, with an empty assistant text if
// the generation did not complete.
func (c *Conversation) Send(ctx context.Context, prompt string, onPartial func(string)) (Reply, error) {
	c.mu.Lock()
	cfg := c.cfg
	history := append([]string(nil), c.history...)
	c.mu.Unlock()

	stream, err := c.gen.GenerateResponse(ctx, prompt, cfg, history)
	if err != nil {
		return Reply{}, err
	}
	var b strings.Builder
	done := stream.Wait(func(text string) {
		b.WriteString(text)
		if onPartial != nil {
			onPartial(text)
		}
	})
	reply := Reply{Text: b.String(), Reason: done.Reason, Metrics: done.Metrics, Err: done.Err}

	assistant := reply.Text
	if !reply.Completed() {
		assistant = ""
		c.log.Warn().Str("event", "turn_aborted").Str("gen_id", stream.ID).Str("reason", string(done.Reason)).Err(done.Err).Msg("turn ended early")
	}
	c.mu.Lock()
	c.history = append(c.history, prompt, assistant)
	c.mu.Unlock()
	return reply, nil
}

// ApplySettings installs cfg for later turns. A change of temperature or
// acceleration resets the session right away when the controller is ready.
func (c *Conversation) ApplySettings(cfg session.ModelConfig) error {
	c.mu.Lock()
	prev := c.cfg
	c.cfg = cfg
	c.mu.Unlock()

	if prev.Temperature == cfg.Temperature && prev.Backend() == cfg.Backend() {
		return nil
	}
	if c.gen.State() != session.StateReady {
		return nil
	}
	c.log.Info().Str("event", "settings_changed").Float64("temperature", cfg.Temperature).Str("accel", string(cfg.Acceleration)).Msg("resetting session")
	return c.gen.ResetSession(cfg)
}

// Config returns the settings used for the next turn.
func (c *Conversation) Config() session.ModelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// History returns a copy of the recorded turns.
func (c *Conversation) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// Reset clears the history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

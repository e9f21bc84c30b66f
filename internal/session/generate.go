package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sessiond/internal/contextbuilder"
	"sessiond/internal/perf"
)

// GenerateResponse streams a reply to prompt given history (alternating
// user/assistant texts). Only one generation may run at a time: a concurrent
// call fails fast with ErrAlreadyGenerating. Once a Stream is returned it
// always ends with exactly one Done event; engine failures, timeouts and
// stalls are reported through that event rather than as errors.
//
// Canceling ctx terminates the generation with OutcomeCanceled.
func (c *Controller) GenerateResponse(ctx context.Context, prompt string, cfg ModelConfig, history []string) (*Stream, error) {
	if st := c.State(); st == StateGenerating {
		return nil, ErrAlreadyGenerating
	}
	if err := c.validateConfig(cfg); err != nil {
		return nil, err
	}
	c.mu.Lock()
	switch c.state {
	case StateGenerating:
		c.mu.Unlock()
		return nil, ErrAlreadyGenerating
	case StateReady:
		c.state = StateGenerating
	default:
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state=%s", ErrNotReady, st)
	}
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	// Release may have run between claiming the state and taking opMu.
	c.mu.RLock()
	st, model := c.state, c.model
	c.mu.RUnlock()
	if st != StateGenerating || model == nil {
		c.mu.Lock()
		if c.state == StateGenerating {
			c.state = StateReady
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state=%s", ErrNotReady, st)
	}

	log := c.logger()
	id := uuid.NewString()

	// State says ready but the handle is gone: recover once before failing.
	if c.slot.Current() == nil {
		log.Warn().Str("event", "session_missing").Str("gen_id", id).Msg("session handle absent, recovering")
		if _, err := c.resetSessionLocked(cfg); err != nil {
			return nil, err
		}
	}

	g := &generation{
		id:         id,
		c:          c,
		tracker:    c.tracker(),
		queue:      newEventQueue(),
		stallLimit: c.stallChunkLimit,
		stopped:    make(chan struct{}),
	}
	stream := &Stream{ID: id, events: make(chan StreamEvent)}
	go g.queue.pump(ctx, stream.events)

	c.mu.Lock()
	c.gen = g
	c.mu.Unlock()

	// Recreate the session every turn so no residual context bleeds across turns.
	profile := cfg
	if len(history) > 0 {
		profile = c.followUp.Apply(cfg)
	}
	sess, err := c.resetSessionLocked(profile)
	if err != nil {
		g.fail(err)
		return stream, nil
	}

	prompt = contextbuilder.Build(history, prompt)
	est := contextbuilder.EstimateTokens(prompt)
	if remaining := cfg.MaxTokens - est; remaining < c.lowTokenBudget {
		log.Warn().Str("event", "low_token_budget").Str("gen_id", id).Int("est_tokens", est).Int("remaining", remaining).Msg("context leaves little room for the reply")
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	// Timers may fire before AfterFunc returns; their callbacks block on g.mu
	// until every field they read is set.
	g.mu.Lock()
	g.session = sess
	g.cancel = cancel
	g.tracker.Start()
	g.firstTimer = time.AfterFunc(c.firstTokenTimeout, g.onFirstTokenTimeout)
	g.totalTimer = time.AfterFunc(c.totalTimeout, g.onTotalTimeout)
	g.mu.Unlock()

	log.Debug().Str("event", "generate_start").Str("gen_id", id).Int("history", len(history)).Int("est_tokens", est).Msg("generation start")
	c.publish("generate_start", map[string]any{"gen_id": id})

	err = guard(func() error { return sess.AddQueryChunk(strings.TrimSpace(prompt)) })
	if err == nil {
		err = guard(func() error { return sess.GenerateAsync(engineCtx, g.onChunk) })
	}
	if err != nil {
		g.abort(OutcomeFault, err)
		return stream, nil
	}

	go func() {
		select {
		case <-ctx.Done():
			g.abort(OutcomeCanceled, ctx.Err())
		case <-g.stopped:
		}
	}()
	return stream, nil
}

// generation is the per-call supervisor. Engine callbacks and timers touch
// only this object; mu serializes chunk handling against termination so no
// partial can follow the terminal event.
type generation struct {
	id      string
	c       *Controller
	session SessionHandle
	tracker *perf.Tracker
	queue   *eventQueue
	cancel  context.CancelFunc

	mu         sync.Mutex
	terminated atomic.Bool
	stopped    chan struct{}
	firstOnce  sync.Once
	firstTimer *time.Timer
	totalTimer *time.Timer
	empties    int
	stallLimit int
}

func (g *generation) onChunk(ch Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminated.Load() {
		return
	}
	if ch.Err != nil {
		g.terminateLocked(OutcomeFault, nil, ch.Err)
		return
	}
	if ch.Text != "" {
		g.empties = 0
		g.firstOnce.Do(func() {
			if g.firstTimer != nil {
				g.firstTimer.Stop()
			}
		})
		g.tracker.OnToken()
		g.queue.push(Partial(ch.Text))
	}
	if ch.Done {
		m := g.tracker.Finish()
		g.terminateLocked(OutcomeCompleted, &m, nil)
		return
	}
	if ch.Text == "" {
		g.empties++
		if g.empties >= g.stallLimit {
			g.terminateLocked(OutcomeStall, nil, nil)
		}
	}
}

func (g *generation) onFirstTokenTimeout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tracker.FirstTokenSeen() {
		return
	}
	g.terminateLocked(OutcomeFirstTokenTimeout, nil, nil)
}

func (g *generation) onTotalTimeout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminateLocked(OutcomeTotalTimeout, nil, nil)
}

// abort terminates from outside the engine (setup fault, cancel, release).
func (g *generation) abort(reason Outcome, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminateLocked(reason, nil, err)
}

// fail terminates a generation whose session could not be created.
func (g *generation) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminateLocked(OutcomeFault, nil, err)
}

// terminateLocked is the only path to the terminal event. The compare-and-set
// makes it win exactly once across chunks, timers and aborts.
func (g *generation) terminateLocked(reason Outcome, m *perf.Metrics, err error) {
	if !g.terminated.CompareAndSwap(false, true) {
		return
	}
	close(g.stopped)
	if g.firstTimer != nil {
		g.firstTimer.Stop()
	}
	if g.totalTimer != nil {
		g.totalTimer.Stop()
	}
	if g.cancel != nil {
		g.cancel()
	}
	if err == nil && reason != OutcomeCompleted {
		err = abnormalError(reason)
	}
	ev := StreamEvent{Kind: EventDone, Metrics: m, Reason: reason, Err: err}
	go g.c.finishGeneration(g, ev)
}

// finishGeneration runs off the engine goroutine: it tears down a session
// left in an unknown state, returns the controller to ready and only then
// emits the terminal event, so a consumer may start the next turn at once.
func (c *Controller) finishGeneration(g *generation, ev StreamEvent) {
	abnormal := ev.Metrics == nil
	c.opMu.Lock()
	if abnormal && g.session != nil {
		c.slot.ClearIf(g.session)
	}
	c.mu.Lock()
	if c.gen == g {
		c.gen = nil
		if c.state == StateGenerating {
			c.state = StateReady
		}
	}
	if ev.Metrics != nil {
		m := *ev.Metrics
		c.last = &m
	}
	c.genCount++
	c.mu.Unlock()
	c.opMu.Unlock()

	generationsTotal.WithLabelValues(string(ev.Reason)).Inc()
	log := c.logger()
	if ev.Metrics != nil {
		firstTokenSeconds.Observe(float64(ev.Metrics.FirstTokenLatencyMs) / 1000)
		tokensPerSecond.Observe(ev.Metrics.TokensPerSecond)
		log.Info().Str("event", "generate_done").Str("gen_id", g.id).
			Int("tokens", ev.Metrics.TotalTokensGenerated).
			Int64("ttft_ms", ev.Metrics.FirstTokenLatencyMs).
			Int64("total_ms", ev.Metrics.TotalInferenceTimeMs).
			Float64("tps", ev.Metrics.TokensPerSecond).
			Msg("generation complete")
	} else {
		log.Warn().Str("event", "generate_abort").Str("gen_id", g.id).Str("reason", string(ev.Reason)).Err(ev.Err).Msg("generation terminated")
	}
	fields := map[string]any{"gen_id": g.id, "reason": string(ev.Reason)}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}
	c.publish("generate_done", fields)
	g.queue.closeWith(ev)
}

// ErrGenerationAborted is wrapped by the Err of every abnormal Done event that
// did not originate from an engine error.
var ErrGenerationAborted = errors.New("generation aborted")

func abnormalError(reason Outcome) error {
	return fmt.Errorf("%w: %s", ErrGenerationAborted, reason)
}

package session

import (
	"fmt"
)

// sessionAttempts bounds session creation: the first try plus one retry.
const sessionAttempts = 2

// ResetSession closes the current session and creates a new one with cfg.
// A failure is retried once with the same parameters; a second failure moves
// the controller to error. A successful reset from error recovers to ready.
func (c *Controller) ResetSession(cfg ModelConfig) error {
	if c.State() == StateGenerating {
		return ErrAlreadyGenerating
	}
	if err := c.validateConfig(cfg); err != nil {
		return err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	st, model := c.state, c.model
	c.mu.RUnlock()
	switch {
	case st == StateGenerating:
		return ErrAlreadyGenerating
	case st != StateReady && st != StateError:
		return fmt.Errorf("%w: state=%s", ErrNotReady, st)
	case model == nil:
		return fmt.Errorf("%w: no model loaded", ErrNotReady)
	}

	if _, err := c.resetSessionLocked(cfg); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == StateError {
		c.state = StateReady
		c.err = ""
	}
	c.mu.Unlock()
	c.publish("session_reset", nil)
	return nil
}

// resetSessionLocked rebuilds the model on a new backend if cfg asks for one,
// then recreates the session with bounded retry. Caller holds opMu.
func (c *Controller) resetSessionLocked(cfg ModelConfig) (SessionHandle, error) {
	log := c.logger()
	c.mu.RLock()
	model, path, accel := c.model, c.modelPath, c.accel
	c.mu.RUnlock()

	if want := cfg.Backend(); want != accel {
		next, err := c.switchBackendLocked(model, path, accel, want)
		if err != nil {
			return nil, err
		}
		model = next
	}

	params := cfg.params()
	var lastErr error
	for attempt := 1; attempt <= sessionAttempts; attempt++ {
		h, err := c.slot.Replace(func() (SessionHandle, error) {
			var h SessionHandle
			err := guard(func() error {
				var e error
				h, e = model.NewSession(params)
				return e
			})
			if err == nil && h == nil {
				err = fmt.Errorf("engine returned no session")
			}
			return h, err
		})
		if err == nil {
			sessionResetsTotal.WithLabelValues("ok").Inc()
			c.mu.Lock()
			c.resetsOK++
			c.mu.Unlock()
			return h, nil
		}
		lastErr = err
		sessionResetsTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("event", "session_create_error").Int("attempt", attempt).Err(err).Msg("session creation failed")
	}
	serr := &SessionError{Attempts: sessionAttempts, Err: lastErr}
	c.failSession(serr)
	return nil, serr
}

// switchBackendLocked reopens the model on want. The GPU probe runs before
// anything is closed, so a host without a GPU keeps its working model. If the
// reopen itself fails the model is restored on the previous backend; only when
// that also fails does the controller enter error without a model.
func (c *Controller) switchBackendLocked(model ModelHandle, path string, from, want Acceleration) (ModelHandle, error) {
	log := c.logger()
	if want == AccelGPU {
		if err := guard(c.engine.ProbeGPU); err != nil {
			lerr := &LoadError{Kind: EngineRejected, Path: path, Err: fmt.Errorf("gpu backend unavailable: %w", err)}
			log.Warn().Str("event", "backend_switch_rejected").Str("to", string(want)).Err(err).Msg("keeping current backend")
			return nil, &SessionError{Attempts: 1, Err: lerr}
		}
	}
	log.Info().Str("event", "backend_switch").Str("from", string(from)).Str("to", string(want)).Msg("rebuilding model on new backend")
	_ = c.slot.Clear()
	if model != nil {
		_ = guard(model.Close)
	}
	c.mu.Lock()
	c.model = nil
	c.mu.Unlock()

	next, err := c.openModelLocked(path, want)
	if err == nil {
		c.mu.Lock()
		c.model, c.accel = next, want
		c.mu.Unlock()
		return next, nil
	}
	serr := &SessionError{Attempts: 1, Err: err}
	prev, rerr := c.openModelLocked(path, from)
	if rerr != nil {
		log.Error().Str("event", "backend_restore_error").Str("backend", string(from)).Err(rerr).Msg("restore previous backend")
		c.failSession(serr)
		return nil, serr
	}
	c.mu.Lock()
	c.model = prev
	c.mu.Unlock()
	log.Warn().Str("event", "backend_switch_failed").Str("to", string(want)).Err(err).Msg("restored previous backend")
	return nil, serr
}

// failSession moves the controller to error. The model handle is kept so a
// later ResetSession can recover; generation is refused until then.
func (c *Controller) failSession(err error) {
	c.mu.Lock()
	c.state = StateError
	c.err = err.Error()
	c.mu.Unlock()
	c.logger().Error().Str("event", "session_unavailable").Err(err).Msg("session unavailable")
	c.publish("session_unavailable", map[string]any{"error": err.Error()})
}

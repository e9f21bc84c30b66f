package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"sessiond/internal/common/fsutil"
)

// checkModelFile validates that path names a regular file of plausible size.
// It does not mutate state and is safe to call at any time.
func (c *Controller) checkModelFile(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &LoadError{Kind: FileMissing, Path: path, Err: err}
		}
		return 0, &LoadError{Kind: EngineRejected, Path: path, Err: err}
	}
	if fi.IsDir() {
		return 0, &LoadError{Kind: FileMissing, Path: path, Err: errors.New("path is a directory")}
	}
	if fi.Size() < c.minModelBytes {
		return fi.Size(), &LoadError{Kind: FileTooSmall, Path: path}
	}
	return fi.Size(), nil
}

// LoadModel validates the model file, constructs the model handle and then the
// first session handle. On failure the controller returns to unloaded with no
// handles held; load errors are never retried.
func (c *Controller) LoadModel(ctx context.Context, path string, cfg ModelConfig) error {
	if err := c.validateConfig(cfg); err != nil {
		return err
	}
	expanded, err := fsutil.ExpandAbs(path)
	if err != nil {
		return &LoadError{Kind: FileMissing, Path: path, Err: err}
	}
	path = expanded

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	prev := c.state
	if prev != StateUnloaded && prev != StateError {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot load while %s", ErrInvalidState, prev)
	}
	c.state = StateLoading
	c.err = ""
	c.mu.Unlock()

	if prev == StateError {
		c.closeHandlesLocked()
	}

	startTs := time.Now()
	log := c.logger()
	log.Info().Str("event", "load_start").Str("path", path).Str("accel", string(cfg.Backend())).Msg("load model")
	c.publish("load_start", map[string]any{"path": path})

	size, err := c.loadLocked(ctx, path, cfg)
	if err != nil {
		c.closeHandlesLocked()
		c.mu.Lock()
		c.state = StateUnloaded
		c.err = err.Error()
		c.modelPath = ""
		c.mu.Unlock()
		log.Error().Str("event", "load_error").Str("path", path).Err(err).Msg("load model failed")
		c.publish("load_error", map[string]any{"path": path, "error": err.Error()})
		return err
	}

	c.setState(StateReady, "")
	dur := time.Since(startTs)
	log.Info().Str("event", "load_ready").Str("path", path).Int64("bytes", size).Dur("dur", dur).Msg("model ready")
	c.publish("load_ready", map[string]any{"dur_ms": int(dur / time.Millisecond), "bytes": size})
	return nil
}

func (c *Controller) loadLocked(ctx context.Context, path string, cfg ModelConfig) (int64, error) {
	size, err := c.checkModelFile(path)
	if err != nil {
		return size, err
	}
	if err := ctx.Err(); err != nil {
		return size, err
	}
	if c.engine == nil {
		return size, ErrDependencyUnavailable("inference engine not configured")
	}
	accel := cfg.Backend()
	model, err := c.openModelLocked(path, accel)
	if err != nil {
		return size, err
	}
	c.mu.Lock()
	c.model = model
	c.modelPath = path
	c.accel = accel
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return size, err
	}
	params := cfg.params()
	_, err = c.slot.Replace(func() (SessionHandle, error) {
		var h SessionHandle
		err := guard(func() error {
			var e error
			h, e = model.NewSession(params)
			return e
		})
		return h, err
	})
	if err != nil {
		sessionResetsTotal.WithLabelValues("failed").Inc()
		return size, &LoadError{Kind: EngineRejected, Path: path, Err: err}
	}
	sessionResetsTotal.WithLabelValues("ok").Inc()
	return size, nil
}

// openModelLocked probes the backend when needed and loads weights.
func (c *Controller) openModelLocked(path string, accel Acceleration) (ModelHandle, error) {
	if accel == AccelGPU {
		if err := guard(c.engine.ProbeGPU); err != nil {
			return nil, &LoadError{Kind: EngineRejected, Path: path, Err: fmt.Errorf("gpu backend unavailable: %w", err)}
		}
	}
	var model ModelHandle
	err := guard(func() error {
		var e error
		model, e = c.engine.LoadModel(path, accel)
		return e
	})
	if err != nil {
		if IsDependencyUnavailable(err) {
			return nil, err
		}
		return nil, &LoadError{Kind: EngineRejected, Path: path, Err: err}
	}
	if model == nil {
		return nil, &LoadError{Kind: EngineRejected, Path: path, Err: errors.New("engine returned no model")}
	}
	return model, nil
}

// closeHandlesLocked closes the session then the model. Caller holds opMu.
func (c *Controller) closeHandlesLocked() {
	_ = c.slot.Clear()
	c.mu.Lock()
	model := c.model
	c.model = nil
	c.mu.Unlock()
	if model != nil {
		if err := guard(model.Close); err != nil {
			c.logger().Warn().Str("event", "model_close_error").Err(err).Msg("close model")
		}
	}
}

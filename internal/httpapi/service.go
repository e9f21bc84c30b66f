package httpapi

import (
	"context"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"sessiond/internal/common/fsutil"
	"sessiond/internal/registry"
	"sessiond/internal/session"
	"sessiond/pkg/types"
)

// ControllerService implements Service over a session.Controller and an
// optional model registry.
type ControllerService struct {
	ctrl         *session.Controller
	reg          *registry.Registry
	defaultModel string
	log          zerolog.Logger

	mu       sync.RWMutex
	defaults session.ModelConfig
}

// NewControllerService wires the HTTP layer to ctrl. defaults fill fields a
// request leaves unset; defaultModel is loaded when /load names no path.
func NewControllerService(ctrl *session.Controller, reg *registry.Registry, defaults session.ModelConfig, defaultModel string) *ControllerService {
	return &ControllerService{ctrl: ctrl, reg: reg, defaults: defaults, defaultModel: defaultModel, log: zlog}
}

// SetDefaults replaces the settings used for fields a request leaves unset.
func (s *ControllerService) SetDefaults(cfg session.ModelConfig) {
	s.mu.Lock()
	s.defaults = cfg
	s.mu.Unlock()
}

func (s *ControllerService) configFrom(in *types.ModelConfig) (session.ModelConfig, error) {
	s.mu.RLock()
	base := s.defaults
	s.mu.RUnlock()
	return session.ConfigFromAPI(in, base)
}

// ListModels rescans the models directory.
func (s *ControllerService) ListModels() []types.Model {
	if s.reg == nil {
		return []types.Model{}
	}
	if err := s.reg.Refresh(); err != nil {
		s.log.Warn().Str("dir", s.reg.Dir()).Err(err).Msg("model scan failed")
	}
	models := s.reg.List()
	if models == nil {
		models = []types.Model{}
	}
	return models
}

func (s *ControllerService) Status() types.StatusResponse { return s.ctrl.Status() }

func (s *ControllerService) Ready() bool { return s.ctrl.Ready() }

func (s *ControllerService) Modes() []string {
	modes := s.ctrl.AvailableAccelerationModes()
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

func (s *ControllerService) LastMetrics() (*types.Metrics, bool) {
	m, ok := s.ctrl.CurrentMetrics()
	if !ok {
		return nil, false
	}
	return session.MetricsToAPI(m), true
}

// Load resolves the requested model and loads it.
func (s *ControllerService) Load(ctx context.Context, req types.LoadRequest) error {
	ref := req.Path
	if ref == "" {
		ref = s.defaultModel
	}
	if ref == "" {
		return badRequest{msg: "path is required (no default model configured)"}
	}
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	cfg, err := s.configFrom(req.Config)
	if err != nil {
		return err
	}
	return s.ctrl.LoadModel(ctx, path, cfg)
}

func (s *ControllerService) resolve(ref string) (string, error) {
	if s.reg == nil {
		return fsutil.ExpandHome(ref)
	}
	if _, err := s.reg.Resolve(ref); registry.IsNotFound(err) {
		// the file may have appeared since the last scan
		_ = s.reg.Refresh()
	}
	return s.reg.Resolve(ref)
}

// Generate streams the controller's events as NDJSON. Errors after the
// stream started are reported in the final line, never returned.
func (s *ControllerService) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	cfg, err := s.configFrom(req.Config)
	if err != nil {
		return err
	}
	stream, err := s.ctrl.GenerateResponse(ctx, req.Prompt, cfg, req.History)
	if err != nil {
		return err
	}
	enc := gojson.NewEncoder(w)
	var writeErr error
	for ev := range stream.Events() {
		if writeErr != nil {
			continue
		}
		if writeErr = enc.Encode(EventToAPI(ev)); writeErr != nil {
			s.log.Debug().Str("gen_id", stream.ID).Err(writeErr).Msg("client write failed; draining")
			continue
		}
		if flush != nil {
			flush()
		}
	}
	return nil
}

func (s *ControllerService) Reset(req types.ResetRequest) error {
	cfg, err := s.configFrom(req.Config)
	if err != nil {
		return err
	}
	return s.ctrl.ResetSession(cfg)
}

func (s *ControllerService) Release() error { return s.ctrl.Release() }

// EventToAPI converts a stream event to its NDJSON form.
func EventToAPI(ev session.StreamEvent) types.StreamEvent {
	if !ev.IsDone() {
		return types.StreamEvent{Text: ev.Text}
	}
	out := types.StreamEvent{Done: true, Reason: string(ev.Reason)}
	if ev.Metrics != nil {
		out.Metrics = session.MetricsToAPI(*ev.Metrics)
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

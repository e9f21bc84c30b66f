package session

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Defaults applied when corresponding ControllerConfig fields are unset.
const (
	defaultFirstTokenTimeout = 30 * time.Second
	defaultTotalTimeout      = 60 * time.Second
	defaultStallChunkLimit   = 10
	defaultMinModelBytes     = 1 << 20
	defaultLowTokenBudget    = 64
)

// DefaultFollowUpProfile is applied to turns that carry history.
var DefaultFollowUpProfile = FollowUpProfile{Temperature: 0.5, TopK: 20, TopP: 0.85}

// ControllerConfig encapsulates all tunables for Controller construction.
type ControllerConfig struct {
	Engine Engine
	// Supervision heuristics. Zero means package default.
	FirstTokenTimeout time.Duration
	TotalTimeout      time.Duration
	StallChunkLimit   int
	// MinModelBytes rejects files below this size as partial downloads.
	MinModelBytes int64
	// LowTokenBudget triggers a warning when fewer tokens remain before MaxTokens.
	LowTokenBudget int
	FollowUp       *FollowUpProfile
	Logger         *zerolog.Logger
	Publisher      EventPublisher
}

// NewWithConfig constructs a Controller from ControllerConfig.
func NewWithConfig(cfg ControllerConfig) *Controller {
	c := &Controller{
		state:     StateUnloaded,
		engine:    cfg.Engine,
		log:       zerolog.Nop(),
		publisher: noopPublisher{},
		validate:  validator.New(),
	}
	if cfg.FirstTokenTimeout <= 0 {
		c.firstTokenTimeout = defaultFirstTokenTimeout
	} else {
		c.firstTokenTimeout = cfg.FirstTokenTimeout
	}
	if cfg.TotalTimeout <= 0 {
		c.totalTimeout = defaultTotalTimeout
	} else {
		c.totalTimeout = cfg.TotalTimeout
	}
	if cfg.StallChunkLimit <= 0 {
		c.stallChunkLimit = defaultStallChunkLimit
	} else {
		c.stallChunkLimit = cfg.StallChunkLimit
	}
	if cfg.MinModelBytes <= 0 {
		c.minModelBytes = defaultMinModelBytes
	} else {
		c.minModelBytes = cfg.MinModelBytes
	}
	if cfg.LowTokenBudget <= 0 {
		c.lowTokenBudget = defaultLowTokenBudget
	} else {
		c.lowTokenBudget = cfg.LowTokenBudget
	}
	if cfg.FollowUp != nil {
		c.followUp = *cfg.FollowUp
	} else {
		c.followUp = DefaultFollowUpProfile
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "session").Logger()
	}
	if cfg.Publisher != nil {
		c.publisher = cfg.Publisher
	}
	c.startTime = time.Now()
	return c
}

// New constructs a Controller over engine with package defaults.
func New(engine Engine) *Controller {
	return NewWithConfig(ControllerConfig{Engine: engine})
}

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"sessiond/internal/perf"
)

// Controller owns one model handle and at most one session handle, and drives
// streaming generation over them. Construct with New or NewWithConfig; there
// is no package-level instance.
type Controller struct {
	// opMu serializes every native handle mutation (load, reset, release,
	// generation setup). Always taken before mu.
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	err       string
	modelPath string
	accel     Acceleration
	model     ModelHandle
	gen       *generation
	last      *perf.Metrics
	genCount  uint64
	resetsOK  uint64

	slot sessionSlot

	engine            Engine
	firstTokenTimeout time.Duration
	totalTimeout      time.Duration
	stallChunkLimit   int
	minModelBytes     int64
	lowTokenBudget    int
	followUp          FollowUpProfile
	newTracker        func() *perf.Tracker

	log       zerolog.Logger
	publisher EventPublisher
	validate  *validator.Validate
	startTime time.Time
}

// SetEngine swaps the engine used for subsequent loads.
func (c *Controller) SetEngine(e Engine) {
	c.opMu.Lock()
	c.engine = e
	c.opMu.Unlock()
}

// SetEventPublisher installs a lifecycle event sink.
func (c *Controller) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	c.mu.Lock()
	c.publisher = p
	c.mu.Unlock()
}

// SetLogger installs a structured logger.
func (c *Controller) SetLogger(l zerolog.Logger) {
	c.mu.Lock()
	c.log = l.With().Str("component", "session").Logger()
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether a generation could start now.
func (c *Controller) Ready() bool { return c.State() == StateReady }

// CurrentMetrics returns the snapshot of the latest completed generation.
func (c *Controller) CurrentMetrics() (perf.Metrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return perf.Metrics{}, false
	}
	return *c.last, true
}

// Snapshot returns a read-only view of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:        c.state,
		ModelPath:    c.modelPath,
		Acceleration: c.accel,
		HasSession:   c.slot.Current() != nil,
		Err:          c.err,
	}
}

func (c *Controller) setState(s State, errMsg string) {
	c.mu.Lock()
	c.state = s
	c.err = errMsg
	c.mu.Unlock()
}

func (c *Controller) logger() *zerolog.Logger {
	c.mu.RLock()
	l := c.log
	c.mu.RUnlock()
	return &l
}

func (c *Controller) publish(name string, fields map[string]any) {
	c.mu.RLock()
	p, path := c.publisher, c.modelPath
	c.mu.RUnlock()
	if fields == nil {
		fields = map[string]any{}
	}
	p.Publish(Event{Name: name, ModelPath: path, Fields: fields})
}

func (c *Controller) validateConfig(cfg ModelConfig) error {
	if err := c.validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Controller) tracker() *perf.Tracker {
	if c.newTracker != nil {
		return c.newTracker()
	}
	return perf.NewTracker()
}

// guard runs an engine call, converting panics into errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return fn()
}

package session

// AvailableAccelerationModes lists usable backends. CPU is always present;
// GPU only when probing the engine's GPU backend succeeds.
func (c *Controller) AvailableAccelerationModes() []Acceleration {
	modes := []Acceleration{AccelCPU}
	c.opMu.Lock()
	e := c.engine
	c.opMu.Unlock()
	if e == nil {
		return modes
	}
	if err := guard(e.ProbeGPU); err != nil {
		c.logger().Debug().Str("event", "gpu_probe").Err(err).Msg("gpu backend unavailable")
		return modes
	}
	return append(modes, AccelGPU)
}

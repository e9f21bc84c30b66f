package session

// Release closes the session then the model and returns to unloaded. It is
// idempotent: releasing an unloaded controller is a no-op. An in-flight
// generation is terminated first.
func (c *Controller) Release() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateUnloaded && c.model == nil {
		c.mu.Unlock()
		return nil
	}
	g := c.gen
	c.gen = nil
	c.mu.Unlock()

	if g != nil {
		g.abort(OutcomeReleased, nil)
	}
	c.publish("release_start", nil)
	c.closeHandlesLocked()

	c.mu.Lock()
	c.state = StateUnloaded
	c.err = ""
	c.modelPath = ""
	c.accel = ""
	c.mu.Unlock()
	c.logger().Info().Str("event", "released").Msg("model released")
	c.publish("release_done", nil)
	return nil
}

package session

import (
	"time"

	"sessiond/internal/perf"
	"sessiond/pkg/types"
)

// MetricsToAPI converts a perf snapshot to its wire form.
func MetricsToAPI(m perf.Metrics) *types.Metrics {
	return &types.Metrics{
		TokensPerSecond:      m.TokensPerSecond,
		FirstTokenLatencyMs:  m.FirstTokenLatencyMs,
		TotalInferenceTimeMs: m.TotalInferenceTimeMs,
		TotalTokensGenerated: m.TotalTokensGenerated,
		LastUpdatedUnixMs:    m.LastUpdatedAt.UnixMilli(),
	}
}

// ConfigFromAPI converts a wire config, filling unset fields from base.
func ConfigFromAPI(in *types.ModelConfig, base ModelConfig) (ModelConfig, error) {
	if in == nil {
		return base, nil
	}
	out := base
	if in.Acceleration != "" {
		a, err := ParseAcceleration(in.Acceleration)
		if err != nil {
			return ModelConfig{}, err
		}
		out.Acceleration = a
	}
	if in.Temperature != nil {
		out.Temperature = *in.Temperature
	}
	if in.TopK != 0 {
		out.TopK = in.TopK
	}
	if in.TopP != nil {
		out.TopP = *in.TopP
	}
	if in.MaxTokens != 0 {
		out.MaxTokens = in.MaxTokens
	}
	return out, nil
}

// Status builds a detailed status response for /status.
func (c *Controller) Status() types.StatusResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp := types.StatusResponse{
		State:              string(c.state),
		ModelPath:          c.modelPath,
		Acceleration:       string(c.accel),
		HasSession:         c.slot.Current() != nil,
		Error:              c.err,
		UptimeSeconds:      int64(time.Since(c.startTime) / time.Second),
		ServerTimeUnix:     time.Now().Unix(),
		GenerationsTotal:   c.genCount,
		SessionResetsTotal: c.resetsOK,
	}
	if c.last != nil {
		resp.LastMetrics = MetricsToAPI(*c.last)
	}
	return resp
}

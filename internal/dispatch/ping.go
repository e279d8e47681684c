package dispatch

import (
	"context"
	"net/http"
	"time"

	"async-chat-broker/internal/telemetry"
)

// PingResult describes a connectivity probe against the engine.
type PingResult struct {
	Reachable  bool
	StatusCode int
	Latency    time.Duration
}

// Ping issues a HEAD request with a short timeout. It never touches jobs.
func (d *Dispatcher) Ping(ctx context.Context) PingResult {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PingTimeout)
	defer cancel()

	start := time.Now()
	result := PingResult{}
	defer func() {
		telemetry.EngineLatency.WithLabelValues("ping").Observe(result.Latency.Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.cfg.WebhookURL, nil)
	if err != nil {
		result.Latency = time.Since(start)
		return result
	}
	resp, err := d.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		return result
	}
	resp.Body.Close()
	result.StatusCode = resp.StatusCode
	result.Reachable = resp.StatusCode >= 200 && resp.StatusCode <= 299
	return result
}

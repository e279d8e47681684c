package api

import (
	"net/http"
	"time"
)

type componentCheck struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTime"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error,omitempty"`
}

type healthChecks struct {
	API    componentCheck `json:"api"`
	Engine componentCheck `json:"engine"`
	Store  componentCheck `json:"store"`
}

type performance struct {
	Latency         int64    `json:"latency"`
	EngineStatus    string   `json:"engineStatus"`
	Recommendations []string `json:"recommendations"`
}

type healthResponse struct {
	Status      string       `json:"status"`
	Timestamp   string       `json:"timestamp"`
	Checks      healthChecks `json:"checks"`
	Performance performance  `json:"performance"`
}

// handleHealth answers 200 when the engine is reachable, 206 when only the
// broker itself is up and 500 when the job store is unavailable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ping := s.dispatcher.Ping(ctx)
	engine := componentCheck{Status: "error", ResponseTime: ping.Latency.Milliseconds(), URL: "missing"}
	if s.dispatcher.Configured() {
		engine.URL = "configured"
	}
	engineStatus := "unreachable"
	if ping.Reachable {
		engine.Status = "ok"
		engineStatus = "reachable"
	}

	storeStart := time.Now()
	store := componentCheck{Status: "ok"}
	if err := s.lifecycle.Store().Ping(ctx); err != nil {
		store.Status = "error"
		store.Error = err.Error()
	}
	store.ResponseTime = time.Since(storeStart).Milliseconds()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks: healthChecks{
			API:    componentCheck{Status: "ok", ResponseTime: time.Since(start).Milliseconds()},
			Engine: engine,
			Store:  store,
		},
		Performance: performance{
			Latency:         ping.Latency.Milliseconds(),
			EngineStatus:    engineStatus,
			Recommendations: recommendations(ping.Latency),
		},
	}

	code := http.StatusOK
	switch {
	case store.Status != "ok":
		resp.Status = "error"
		code = http.StatusInternalServerError
	case !ping.Reachable:
		resp.Status = "degraded"
		code = http.StatusPartialContent
	}
	noCache(w)
	writeJSON(w, code, resp)
}

func recommendations(latency time.Duration) []string {
	switch {
	case latency > 3*time.Second:
		return []string{"Engine response time is slow (>3s). Consider optimizing the workflow or checking network connectivity."}
	case latency > time.Second:
		return []string{"Engine response time is moderate (>1s). Monitor for improvements."}
	default:
		return []string{"Engine performance is good."}
	}
}

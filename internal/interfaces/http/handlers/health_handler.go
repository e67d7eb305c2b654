package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// HealthSource reports the health of the annotation pipeline.
type HealthSource interface {
	Health(ctx context.Context) common.HealthReport
}

// HealthChecker is an extra component probed alongside the source, such as
// the Kafka brokers.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.ComponentName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthHandler serves the liveness, readiness and detail probes.
type HealthHandler struct {
	source   HealthSource
	checkers []HealthChecker
	version  string
	startAt  time.Time

	readinessTimeout time.Duration
	detailTimeout    time.Duration
}

// NewHealthHandler creates a HealthHandler.  A nil source makes readiness fail
// until the engine is loaded.
func NewHealthHandler(version string, source HealthSource, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		source:           source,
		checkers:         checkers,
		version:          version,
		startAt:          time.Now(),
		readinessTimeout: 5 * time.Second,
		detailTimeout:    10 * time.Second,
	}
}

// LivenessResponse is the response for the liveness probe.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the response for the readiness probe.
type ReadinessResponse struct {
	Status     string                   `json:"status"`
	Components []common.ComponentHealth `json:"components,omitempty"`
}

// DetailedResponse is the response for the detail probe.
type DetailedResponse struct {
	Status     common.HealthStatus      `json:"status"`
	Version    string                   `json:"version"`
	Uptime     string                   `json:"uptime"`
	Components []common.ComponentHealth `json:"components"`
	CheckedAt  common.Timestamp         `json:"checked_at"`
}

// Liveness handles GET /healthz.  It never checks dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  h.uptime(),
	})
}

// Readiness handles GET /readyz.  A degraded pipeline (for example a lost
// cache) is still ready; any component down is not.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeAppError(w, errors.New(errors.ErrCodeEngineNotReady, "annotation engine not loaded"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.readinessTimeout)
	defer cancel()

	report := h.report(ctx)
	resp := ReadinessResponse{Components: report.Components}
	if report.Status == common.HealthDown {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "ready"
	writeJSON(w, http.StatusOK, resp)
}

// Detailed handles GET /healthz/detail.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeAppError(w, errors.New(errors.ErrCodeEngineNotReady, "annotation engine not loaded"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.detailTimeout)
	defer cancel()

	report := h.report(ctx)
	code := http.StatusOK
	if report.Status == common.HealthDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, DetailedResponse{
		Status:     report.Status,
		Version:    h.version,
		Uptime:     h.uptime(),
		Components: report.Components,
		CheckedAt:  report.CheckedAt,
	})
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startAt).Truncate(time.Second).String()
}

// report merges the source report with the extra checkers.
func (h *HealthHandler) report(ctx context.Context) common.HealthReport {
	base := h.source.Health(ctx)
	if len(h.checkers) == 0 {
		return base
	}
	components := append(append([]common.ComponentHealth{}, base.Components...), h.checkAll(ctx)...)
	return common.NewHealthReport(components...)
}

// checkAll runs the checkers concurrently; results keep registration order.
func (h *HealthHandler) checkAll(ctx context.Context) []common.ComponentHealth {
	results := make([]common.ComponentHealth, len(h.checkers))
	var wg sync.WaitGroup

	for i, checker := range h.checkers {
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			ch := common.ComponentHealth{
				Name:    c.Name(),
				Status:  common.HealthUp,
				Latency: time.Since(start),
			}
			if err != nil {
				ch.Status = common.HealthDown
				ch.Message = err.Error()
			}
			results[i] = ch
		}(i, checker)
	}

	wg.Wait()
	return results
}

//Personal.AI order the ending

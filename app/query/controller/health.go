package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const healthTimeout = 5 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth checks every registered dependency concurrently.
// It answers 503 when any of them fails.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	results := xsync.NewMap[string, string]()
	group := c.pool.NewGroupContext(ctx)
	for _, check := range c.App.HealthChecks {
		group.Submit(func() {
			if err := check.Check(ctx); err != nil {
				c.App.Logger.Warn("Health check failed", zap.String("check", check.Name), zap.Error(err))
				results.Store(check.Name, "errored")
				return
			}
			results.Store(check.Name, "ok")
		})
	}
	_ = group.Wait()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(c.App.HealthChecks))}
	for _, check := range c.App.HealthChecks {
		status, ok := results.Load(check.Name)
		if !ok {
			// the group was cancelled before the check ran
			status = "errored"
		}
		if status != "ok" {
			resp.Status = "errored"
		}
		resp.Checks[check.Name] = status
	}

	if resp.Status != "ok" {
		c.App.Metrics.ServerErrors.Inc()
		c.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	c.writeJSON(w, http.StatusOK, resp)
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealth reports the liveness of every backing dependency the
// platform cannot serve a correct answer without, per spec.md §6's
// {mongo, redis, vector_index, status} contract.
func (d *Deps) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{}
	ok := true

	check := func(name string, checker HealthChecker) {
		if checker == nil {
			return
		}
		if err := checker.Ping(ctx); err != nil {
			body[name] = "down"
			ok = false
			return
		}
		body[name] = "up"
	}
	check("mongo", d.Mongo)
	check("redis", d.Redis)
	check("vector_index", d.Vectors)

	if d.LLM != nil {
		snapshots := d.LLM.Status()
		backends := make(gin.H, len(snapshots))
		for _, s := range snapshots {
			backends[s.ID] = string(s.Health)
		}
		body["llm_backends"] = backends
	}

	status := "ok"
	code := http.StatusOK
	if !ok {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	body["status"] = status
	c.JSON(code, body)
}

// handleMetrics returns a minimal Prometheus-text snapshot holding one
// health gauge per LLM backend (1 when up, 0 otherwise). Prometheus
// plumbing is an explicit external collaborator per spec.md §1; this
// endpoint exists to satisfy the contract in §6 without taking on that
// dependency.
func (d *Deps) handleMetrics(c *gin.Context) {
	snapshots := []string{}
	if d.LLM != nil {
		for _, s := range d.LLM.Status() {
			snapshots = append(snapshots, "platform_llm_backend_up{id=\""+s.ID+"\"} "+healthGaugeValue(string(s.Health)))
		}
	}
	c.Header("Content-Type", "text/plain; version=0.0.4")
	body := "# HELP platform_llm_backend_up LLM backend health (1=up, 0=not up)\n# TYPE platform_llm_backend_up gauge\n"
	for _, line := range snapshots {
		body += line + "\n"
	}
	c.String(http.StatusOK, body)
}

func healthGaugeValue(health string) string {
	if health == "up" {
		return "1"
	}
	return "0"
}

package api

import (
	"net/http"
	"os/exec"

	echo "github.com/labstack/echo/v5"

	"github.com/dana-ai/dana/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. The sandbox interpreter missing is
// unhealthy (no code can run); a missing LLM key is degraded so probes
// do not restart a process that can still serve reads.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := exec.LookPath(s.cfg.Sandbox.PythonBin); err != nil {
		status = healthStatusUnhealthy
		checks["sandbox"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["sandbox"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.cfg.LLM.APIKey == "" {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["llm"] = HealthCheck{Status: healthStatusDegraded, Message: "api key not configured"}
	} else {
		checks["llm"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:         status,
		Version:        version.GitCommit,
		ActiveSessions: s.sessions.ActiveCount(),
		Checks:         checks,
	})
}

package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getSessionHandler handles GET /api/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	summary, err := s.sessions.Get(sessionID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// listSessionsHandler handles GET /api/sessions, newest first.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sessions.List())
}

// sessionResultHandler handles GET /api/sessions/:id/result. A session
// that has not reached a terminal phase yet answers 409.
func (s *Server) sessionResultHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	result, err := s.sessions.Fetch(sessionID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// stopSessionHandler handles POST /api/sessions/:id/stop. The stop is
// cooperative: 202 acknowledges the request, the agent_stopped event on
// the stream confirms it took effect.
func (s *Server) stopSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if err := s.sessions.Stop(sessionID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, &StopResponse{
		SessionID: sessionID,
		Status:    "stopping",
	})
}

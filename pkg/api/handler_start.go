package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dana-ai/dana/pkg/session"
)

// startHandler handles POST /api/start: multipart form with the dataset
// file, the analysis request, and an optional mode override. Returns 202
// as soon as the session goroutine is spawned.
func (s *Server) startHandler(c *echo.Context) error {
	sess, err := s.startSession(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, &StartResponse{
		SessionID:    sess.ID,
		Status:       "started",
		WebsocketURL: "/ws/" + sess.ID,
	})
}

// startSyncHandler handles POST /api/start-sync: same input as /api/start
// but blocks until the session reaches a terminal phase and returns the
// result payload directly. Intended for tests and CLI use.
func (s *Server) startSyncHandler(c *echo.Context) error {
	sess, err := s.startSession(c)
	if err != nil {
		return err
	}

	if err := s.sessions.Wait(c.Request().Context(), sess.ID); err != nil {
		return mapError(err)
	}
	result, err := s.sessions.Fetch(sess.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) startSession(c *echo.Context) (*session.Session, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if max := s.cfg.Storage.MaxFileSizeBytes; header.Size > max {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", max))
	}

	src, err := header.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer src.Close()

	sess, err := s.sessions.Start(c.Request().Context(), session.StartInput{
		Request:  c.FormValue("request"),
		Strategy: c.FormValue("mode"),
		Filename: header.Filename,
		File:     src,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return sess, nil
}

package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dana-ai/dana/pkg/models"
)

// mapError maps kinded session/tool errors to HTTP error responses.
// Errors with no kind are unexpected and come back as opaque 500s.
func mapError(err error) *echo.HTTPError {
	switch models.KindOf(err) {
	case models.KindInvalidInput, models.KindUnsupportedFormat:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case models.KindUnknownSession:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case models.KindSessionNotReady, models.KindInvalidState:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	slog.Error("Unexpected error in handler", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

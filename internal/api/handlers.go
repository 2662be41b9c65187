// Package api contains the read-side HTTP handlers for the workflow engine.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-mcp/internal/services"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "workflow-mcp",
		Version:   "1.0.0",
	})
}

// httpError maps typed engine errors onto HTTP status codes.
func httpError(err error) error {
	var se *services.ServiceError
	if errors.As(err, &se) {
		switch se.Code {
		case services.CodeNotFound:
			return echo.NewHTTPError(http.StatusNotFound, se.Message)
		case services.CodeInvalidInput:
			return echo.NewHTTPError(http.StatusBadRequest, se.Message)
		case services.CodePreconditionFailed:
			return echo.NewHTTPError(http.StatusConflict, se.Message)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

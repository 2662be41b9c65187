package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-mcp/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Executions *services.ExecutionService
	Tracker    *services.ProgressTracker
	Aggregator *services.ProgressAggregator
}

// NewServer creates a new Server.
func NewServer(executions *services.ExecutionService, tracker *services.ProgressTracker, aggregator *services.ProgressAggregator) *Server {
	return &Server{Executions: executions, Tracker: tracker, Aggregator: aggregator}
}

// RegisterRoutes mounts the read-side endpoints. Writes go through the
// MCP tool surface; the REST API is for dashboards and probes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth)
	e.GET("/api/v1/executions", s.ListActiveExecutions)
	e.GET("/api/v1/executions/:id", s.GetExecution)
	e.GET("/api/v1/executions/:id/progress", s.GetExecutionProgress)
	e.GET("/api/v1/executions/:id/summary", s.GetCompletionSummary)
	e.GET("/api/v1/roles/metrics", s.GetRoleMetrics)
	e.GET("/api/v1/roles/:id/summary", s.GetRoleSummary)
}

// ListActiveExecutions returns executions with no completion timestamp
// (GET /api/v1/executions)
func (s *Server) ListActiveExecutions(c echo.Context) error {
	ctx := c.Request().Context()

	execs, err := s.Executions.ActiveExecutions(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, execs)
}

// GetExecution returns one execution
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()

	exec, err := s.Executions.GetExecution(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, exec)
}

// GetExecutionProgress returns the derived progress view of an execution
// (GET /api/v1/executions/:id/progress)
func (s *Server) GetExecutionProgress(c echo.Context) error {
	ctx := c.Request().Context()

	exec, err := s.Executions.GetExecution(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.Aggregator.CalculateProgress(exec))
}

// GetCompletionSummary returns the wrap-up view of an execution
// (GET /api/v1/executions/:id/summary)
func (s *Server) GetCompletionSummary(c echo.Context) error {
	ctx := c.Request().Context()

	summary, err := s.Aggregator.GenerateCompletionSummary(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// GetRoleMetrics returns active executions grouped by current role
// (GET /api/v1/roles/metrics)
func (s *Server) GetRoleMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	metrics, err := s.Aggregator.RoleMetrics(ctx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, metrics)
}

// GetRoleSummary returns aggregated attempt statistics for a role
// (GET /api/v1/roles/:id/summary)
func (s *Server) GetRoleSummary(c echo.Context) error {
	ctx := c.Request().Context()

	summary, err := s.Tracker.GetRoleProgressSummary(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

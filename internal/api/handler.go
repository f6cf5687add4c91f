// Package api provides the HTTP surface of the agent service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/copilot-agent/server/internal/agent/graph"
	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/model"
)

// Handler handles HTTP requests.
type Handler struct {
	runner       graph.Runner
	checkpointer model.Checkpointer
	dispatcher   *nodes.Dispatcher
	version      string
}

// NewHandler creates a new handler.
func NewHandler(runner graph.Runner, checkpointer model.Checkpointer, dispatcher *nodes.Dispatcher, version string) *Handler {
	return &Handler{
		runner:       runner,
		checkpointer: checkpointer,
		dispatcher:   dispatcher,
		version:      version,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	// Turn invocation
	api.POST("/chat", h.Chat)

	// Thread history
	api.GET("/threads/:thread_id/messages", h.GetThreadMessages)

	// Tool registry
	api.GET("/tools", h.ListTools)
	api.POST("/tools/:name/invoke", h.InvokeTool)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

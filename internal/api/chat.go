package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
)

// Chat runs one turn. Body: {"message", "threadId"?, "modelConfig"?}.
func (h *Handler) Chat(c echo.Context) error {
	var req model.TurnInput
	if err := c.Bind(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	out, err := h.runner.Invoke(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

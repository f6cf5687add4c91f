package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
)

// ThreadMessagesResponse is the persisted history of one thread.
type ThreadMessagesResponse struct {
	ThreadID string              `json:"threadId"`
	Messages []model.MessageView `json:"messages"`
}

// GetThreadMessages returns the persisted messages of a thread; unseen ids yield an empty list.
func (h *Handler) GetThreadMessages(c echo.Context) error {
	threadID := strings.TrimSpace(c.Param("thread_id"))
	if threadID == "" {
		return errx.Validation("thread_id is required")
	}

	state, err := h.checkpointer.Load(c.Request().Context(), threadID)
	if err != nil {
		return errx.WrapStorage(err)
	}
	return c.JSON(http.StatusOK, ThreadMessagesResponse{
		ThreadID: threadID,
		Messages: model.ViewMessages(state.Messages),
	})
}

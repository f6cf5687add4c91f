package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/copilot-agent/server/internal/agent/graph/tools"
	errx "github.com/copilot-agent/server/internal/core/error"
)

// ParamDescriptor describes one tool parameter.
type ParamDescriptor struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolDescriptor is the advertised shape of a registered tool.
type ToolDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []ParamDescriptor `json:"parameters"`
}

// ToolInvokeRequest is the body of a direct tool invocation.
type ToolInvokeRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// ToolInvokeResponse carries the stringified tool result.
type ToolInvokeResponse struct {
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

func describeTool(t tools.Tool) ToolDescriptor {
	params := make([]ParamDescriptor, 0, len(t.Params))
	for name, p := range t.Params {
		params = append(params, ParamDescriptor{
			Name:        name,
			Type:        string(p.Kind),
			Description: p.Desc,
			Required:    p.Required,
			Enum:        p.Enum,
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: params}
}

// ListTools returns every registered tool in registration order.
func (h *Handler) ListTools(c echo.Context) error {
	list := h.dispatcher.Registry().List()
	out := make([]ToolDescriptor, 0, len(list))
	for _, t := range list {
		out = append(out, describeTool(t))
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": out})
}

// InvokeTool executes one tool outside of a turn.
func (h *Handler) InvokeTool(c echo.Context) error {
	name := c.Param("name")
	tool, ok := h.dispatcher.Registry().Get(name)
	if !ok {
		return errx.ToolNotFound(name)
	}

	var req ToolInvokeRequest
	if err := c.Bind(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	result, err := h.dispatcher.Execute(c.Request().Context(), tool, req.Arguments)
	if errors.Is(err, context.DeadlineExceeded) {
		return errx.ToolTimeout(name, h.dispatcher.Timeout(), err)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ToolInvokeResponse{Tool: name, Result: result})
}

package api

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/graph/tools"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// NewMCPServer exposes every registered tool over the Model Context Protocol.
// Calls run through the same validation and timeout path as agent tool calls.
func NewMCPServer(dispatcher *nodes.Dispatcher, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"copilot-agent",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	for _, t := range dispatcher.Registry().List() {
		s.AddTool(mcpTool(t), mcpHandler(dispatcher, t))
	}
	return s
}

func mcpTool(t tools.Tool) mcplib.Tool {
	opts := []mcplib.ToolOption{mcplib.WithDescription(t.Description)}
	for _, p := range describeTool(t).Parameters {
		propOpts := []mcplib.PropertyOption{}
		if p.Description != "" {
			propOpts = append(propOpts, mcplib.Description(p.Description))
		}
		if p.Required {
			propOpts = append(propOpts, mcplib.Required())
		}
		switch tools.Kind(p.Type) {
		case tools.KindNumber:
			opts = append(opts, mcplib.WithNumber(p.Name, propOpts...))
		case tools.KindBoolean:
			opts = append(opts, mcplib.WithBoolean(p.Name, propOpts...))
		case tools.KindEnum:
			propOpts = append(propOpts, mcplib.Enum(p.Enum...))
			opts = append(opts, mcplib.WithString(p.Name, propOpts...))
		default:
			opts = append(opts, mcplib.WithString(p.Name, propOpts...))
		}
	}
	return mcplib.NewTool(t.Name, opts...)
}

func mcpHandler(dispatcher *nodes.Dispatcher, t tools.Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		result, err := dispatcher.Execute(ctx, t, args)
		if err != nil {
			logx.Warn().Err(err).Str("tool_name", t.Name).Msg("MCP tool call failed")
			var appErr *errx.AppError
			if errors.As(err, &appErr) && appErr.Code == errx.CodeValidation {
				return mcplib.NewToolResultError(fmt.Sprintf("invalid arguments: %s", appErr.Message)), nil
			}
			return mcplib.NewToolResultError(fmt.Sprintf("tool %s failed: %v", t.Name, err)), nil
		}
		return mcplib.NewToolResultText(result), nil
	}
}

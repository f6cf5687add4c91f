package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// NewServer builds the echo server with middleware, routes, error rendering and
// the MCP endpoint. mcp may be nil.
func NewServer(h *Handler, mcp *mcpserver.MCPServer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logx.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logx.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	h.RegisterRoutes(e)

	if mcp != nil {
		e.Any("/mcp", echo.WrapHandler(mcpserver.NewStreamableHTTPServer(mcp)))
	}
	return e
}

// errorHandler renders every error as errx.ErrorResponse.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *errx.AppError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
	case errors.As(err, &he):
		code := errx.CodeInternal
		if he.Code < http.StatusInternalServerError {
			code = errx.CodeValidation
		}
		appErr = errx.New(nil, he.Code, code, fmt.Sprint(he.Message))
	default:
		appErr = errx.From(err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("code", appErr.Code).Str("path", c.Path()).Msg("request failed")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(appErr.Status)
	} else {
		writeErr = c.JSON(appErr.Status, appErr.Response())
	}
	if writeErr != nil {
		logx.Error().Err(writeErr).Msg("failed to write error response")
	}
}

package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/copilot-agent/server/internal/agent/graph/tools"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// maxParallelTools bounds concurrent executions within one AI message.
const maxParallelTools = 8

// Dispatcher executes the tool calls of one AI message against the registry.
// Dispatch never fails: every call yields exactly one ToolResult, in request order.
type Dispatcher struct {
	registry *tools.Registry
	timeout  time.Duration
	parallel bool
}

func NewDispatcher(registry *tools.Registry, timeout time.Duration, parallel bool) *Dispatcher {
	return &Dispatcher{registry: registry, timeout: timeout, parallel: parallel}
}

// Registry exposes the registry the dispatcher runs against.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Timeout is the per-tool deadline; zero means none.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch runs every tool call in ai and returns one tool message per call.
func (d *Dispatcher) Dispatch(ctx context.Context, ai *schema.Message) []*schema.Message {
	if ai == nil || len(ai.ToolCalls) == 0 {
		return nil
	}

	results := make([]*schema.Message, len(ai.ToolCalls))
	run := func(i int) {
		call := ai.ToolCalls[i]
		content := d.runCall(ctx, call.Function.Name, call.Function.Arguments)
		msg := schema.ToolMessage(content, call.ID)
		msg.ToolName = call.Function.Name
		results[i] = msg
	}

	if !d.parallel || len(ai.ToolCalls) == 1 {
		for i := range ai.ToolCalls {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i := range ai.ToolCalls {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runCall produces the ToolResult content for one call; errors become content.
func (d *Dispatcher) runCall(ctx context.Context, name, arguments string) string {
	tool, ok := d.registry.Get(name)
	if !ok {
		logx.Warn().Str("tool_name", name).Str("arguments", arguments).Msg("Model requested an unknown tool")
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	}

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "Registry",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &einotool.CallbackInput{ArgumentsInJSON: arguments})

	content, err := d.parseAndExecute(ctx, tool, arguments)
	if err != nil {
		callbacks.OnError(ctx, err)
		return d.errorContent(name, err)
	}
	callbacks.OnEnd(ctx, &einotool.CallbackOutput{Response: content})
	return content
}

func (d *Dispatcher) parseAndExecute(ctx context.Context, tool tools.Tool, arguments string) (string, error) {
	args, err := tools.ParseArguments(arguments)
	if err != nil {
		return "", errx.Validation(err.Error()).WithDetail("tool", tool.Name)
	}
	return d.Execute(ctx, tool, args)
}

func (d *Dispatcher) errorContent(name string, err error) string {
	var appErr *errx.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Code == errx.CodeValidation:
		return fmt.Sprintf("Error: invalid arguments for tool '%s': %s", name, appErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Error: Tool '%s' timed out after %s", name, d.timeout)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Error: Tool '%s' was cancelled", name)
	default:
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
}

// Execute validates args and runs tool under the per-tool timeout, returning the
// stringified result. Panics in the tool or while rendering its result become errors.
func (d *Dispatcher) Execute(ctx context.Context, tool tools.Tool, args map[string]any) (string, error) {
	normalized, err := tool.Normalize(args)
	if err != nil {
		return "", errx.Validation(err.Error()).WithDetail("tool", tool.Name)
	}

	start := time.Now()
	content, err := d.call(ctx, tool, normalized)
	logx.Debug().
		Str("tool_name", tool.Name).
		Dur("elapsed", time.Since(start)).
		AnErr("error", err).
		Msg("Tool executed")
	return content, err
}

type callResult struct {
	content string
	err     error
}

func (d *Dispatcher) call(ctx context.Context, tool tools.Tool, args map[string]any) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// buffered so a tool that ignores ctx can still finish without blocking
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Str("tool_name", tool.Name).Interface("panic", r).Msg("Tool panicked")
				done <- callResult{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, err := tool.Execute(ctx, args)
		if err != nil {
			done <- callResult{err: err}
			return
		}
		content, err := tools.Stringify(out)
		done <- callResult{content: content, err: err}
	}()

	select {
	case r := <-done:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

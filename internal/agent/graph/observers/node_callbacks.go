package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	logx "github.com/copilot-agent/server/pkg/logger"
)

type nodeStartKey struct{ name string }

// newNodeHandler times every lambda node of the turn graph.
func newNodeHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			return context.WithValue(ctx, nodeStartKey{name: info.Name}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			ev := logx.Debug().Str("node", info.Name)
			if start, ok := ctx.Value(nodeStartKey{name: info.Name}).(time.Time); ok {
				ev = ev.Dur("elapsed", time.Since(start))
			}
			ev.Msg("Node finished")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("node", info.Name).Msg("Node failed")
			return ctx
		}).
		Build()
}

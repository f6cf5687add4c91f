package nodes

import (
	"github.com/cloudwego/eino/schema"
)

// Route is the Turn Router decision.
type Route string

const (
	RouteContinue Route = "continue"
	RouteEnd      Route = "end"
)

// ShouldContinue inspects only the last message: an assistant message with at
// least one tool call continues to tool dispatch; anything else ends the turn,
// including an empty history or a dangling tool/system/user message.
func ShouldContinue(msgs []*schema.Message) Route {
	if len(msgs) == 0 {
		return RouteEnd
	}
	last := msgs[len(msgs)-1]
	if last == nil {
		return RouteEnd
	}
	if last.Role == schema.Assistant && len(last.ToolCalls) > 0 {
		return RouteContinue
	}
	return RouteEnd
}

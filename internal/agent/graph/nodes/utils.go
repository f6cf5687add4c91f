package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/copilot-agent/server/internal/agent/model"
)

const DefaultMaxToolRounds = 10

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolRounds returns a sane default when the provided value is invalid.
func normalizeMaxToolRounds(n int) int {
	if n <= 0 {
		return DefaultMaxToolRounds
	}
	return n
}

// checkAndMarkToolLimit reports whether the tool round limit has been reached
// and marks the state the first time it is.
func checkAndMarkToolLimit(state *model.TurnState, max int) bool {
	max = normalizeMaxToolRounds(max)
	if !state.ToolLimitReached && state.ToolRounds >= max {
		state.ToolLimitReached = true
	}
	return state.ToolLimitReached
}

// hasSystemMessage reports whether any message in msgs is a system message.
func hasSystemMessage(msgs []*schema.Message) bool {
	for _, m := range msgs {
		if m != nil && m.Role == schema.System {
			return true
		}
	}
	return false
}

// WithSystemPrompt returns msgs with a system message prepended when none exists.
// The input slice is not modified.
func WithSystemPrompt(msgs []*schema.Message, prompt string) []*schema.Message {
	if hasSystemMessage(msgs) || strings.TrimSpace(prompt) == "" {
		out := make([]*schema.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]*schema.Message, 0, len(msgs)+1)
	out = append(out, schema.SystemMessage(prompt))
	return append(out, msgs...)
}

// ensureToolCallIDs assigns ids to tool calls the provider left blank.
func ensureToolCallIDs(msg *schema.Message) {
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.NewString()[:8]
		}
	}
}

// withoutToolCalls returns a copy of msg with tool calls removed so persisted
// history never holds calls without results.
func withoutToolCalls(msg *schema.Message) *schema.Message {
	clone := *msg
	clone.ToolCalls = nil
	return &clone
}

package model

import (
	"github.com/cloudwego/eino/schema"
)

// TurnState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen inside Eino state handlers or compose.ProcessState,
//     which serialize access, so no extra locking is needed.
//   - Persistence goes through the Checkpointer in the commit node only.
type TurnState struct {
	ThreadID    string
	ModelConfig ModelConfig

	// Persisted history as loaded at the start of the turn.
	History []*schema.Message
	// Messages produced during this turn (Human, AI, ToolResult...), in order.
	Delta []*schema.Message

	ToolRounds        int
	ToolLimitReached  bool
	TotalCostUSD      float64
	ResolvedModelName string
}

// Messages returns History followed by Delta.
func (s *TurnState) Messages() []*schema.Message {
	out := make([]*schema.Message, 0, len(s.History)+len(s.Delta))
	out = append(out, s.History...)
	return append(out, s.Delta...)
}

// TurnInput represents one user message sent to a thread.
type TurnInput struct {
	Message     string       `json:"message"`
	ThreadID    string       `json:"threadId,omitempty"`
	ModelConfig *ModelConfig `json:"modelConfig,omitempty"`
}

// MessageView is the flattened {role, content} shape returned to callers.
type MessageView struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []schema.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	ToolName   string            `json:"toolName,omitempty"`
}

// TurnOutput is the result of a completed turn.
type TurnOutput struct {
	Response string        `json:"response"`
	ThreadID string        `json:"threadId"`
	Model    ModelConfig   `json:"model"`
	Messages []MessageView `json:"messages"`
	CostUSD  float64       `json:"costUsd,omitempty"`
	// ToolCalls counts the tool executions of this turn.
	ToolCalls int `json:"toolCalls"`
}

// ViewMessages flattens messages for the external interface.
func ViewMessages(msgs []*schema.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, MessageView{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		})
	}
	return out
}

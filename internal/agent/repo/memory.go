package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/copilot-agent/server/internal/agent/model"
)

// MemoryCheckpointer keeps threads in process memory. State is lost on restart.
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string][]*schema.Message
}

func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: make(map[string][]*schema.Message)}
}

func (m *MemoryCheckpointer) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.threads[threadID]
	if !ok {
		return emptyState(threadID), nil
	}
	return &model.ConversationState{ThreadID: threadID, Messages: cloneMessages(stored)}, nil
}

func (m *MemoryCheckpointer) Save(_ context.Context, threadID string, state *model.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.threads[threadID]
	tail, err := tailOf(threadID, len(stored), state)
	if err != nil {
		return err
	}
	if len(tail) == 0 {
		return nil
	}
	next := make([]*schema.Message, 0, len(stored)+len(tail))
	next = append(next, stored...)
	next = append(next, cloneMessages(tail)...)
	m.threads[threadID] = next
	return nil
}

// cloneMessages copies the message structs so callers cannot mutate stored history.
func cloneMessages(msgs []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, len(msgs))
	for i, msg := range msgs {
		if msg == nil {
			continue
		}
		c := *msg
		if msg.ToolCalls != nil {
			c.ToolCalls = append([]schema.ToolCall(nil), msg.ToolCalls...)
		}
		out[i] = &c
	}
	return out
}

var _ model.Checkpointer = (*MemoryCheckpointer)(nil)

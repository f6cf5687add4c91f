package repo

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
)

// tailOf returns the messages of state beyond the stored length. Saves that
// would shrink the stored history are rejected.
func tailOf(threadID string, stored int, state *model.ConversationState) ([]*schema.Message, error) {
	incoming := 0
	if state != nil {
		incoming = len(state.Messages)
	}
	if incoming < stored {
		return nil, errx.HistoryConflict(threadID, stored, incoming)
	}
	if incoming == stored {
		return nil, nil
	}
	return state.Messages[stored:], nil
}

func encodeMessage(m *schema.Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil message")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return b, nil
}

func decodeMessage(b []byte) (*schema.Message, error) {
	var m schema.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &m, nil
}

func emptyState(threadID string) *model.ConversationState {
	return &model.ConversationState{ThreadID: threadID, Messages: []*schema.Message{}}
}

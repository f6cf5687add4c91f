package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Checkpointer persists conversation state between turns, keyed by thread id.
type Checkpointer interface {
	// Load returns the state for threadID; an unseen thread yields an empty state and no side effect.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save persists state for threadID. The stored history must be a prefix of state.Messages;
	// backends reject saves that would shrink it.
	Save(ctx context.Context, threadID string, state *ConversationState) error
}

// ConversationState is the append-only message log of one thread.
type ConversationState struct {
	ThreadID string
	Messages []*schema.Message
}

// Append returns a new state with msgs concatenated after the existing messages.
// The receiver is left untouched.
func (s *ConversationState) Append(msgs ...*schema.Message) *ConversationState {
	out := &ConversationState{ThreadID: s.ThreadID}
	out.Messages = make([]*schema.Message, 0, len(s.Messages)+len(msgs))
	out.Messages = append(out.Messages, s.Messages...)
	out.Messages = append(out.Messages, msgs...)
	return out
}

// Last returns the most recent message or nil.
func (s *ConversationState) Last() *schema.Message {
	if s == nil || len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

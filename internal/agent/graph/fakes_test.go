package graph_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/model"
)

// replyFunc scripts the model: call is 0-based across the whole test.
type replyFunc func(ctx context.Context, call int, input []*schema.Message, toolsBound bool) (*schema.Message, error)

type modelCall struct {
	input      []*schema.Message
	toolsBound bool
}

type script struct {
	mu    sync.Mutex
	reply replyFunc
	calls []modelCall
}

func (s *script) snapshot() []modelCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]modelCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// scriptedModel implements einomodel.ToolCallingChatModel.
type scriptedModel struct {
	script *script
	tools  []*schema.ToolInfo
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.script.mu.Lock()
	call := len(m.script.calls)
	in := make([]*schema.Message, len(input))
	copy(in, input)
	m.script.calls = append(m.script.calls, modelCall{input: in, toolsBound: len(m.tools) > 0})
	m.script.mu.Unlock()

	return m.script.reply(ctx, call, input, len(m.tools) > 0)
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming is not scripted")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return &scriptedModel{script: m.script, tools: tools}, nil
}

// fakeFactory hands out scripted models and records the configs it saw.
type fakeFactory struct {
	script *script
	err    error

	mu      sync.Mutex
	configs []model.ModelConfig
}

func newFakeFactory(reply replyFunc) *fakeFactory {
	return &fakeFactory{script: &script{reply: reply}}
}

func (f *fakeFactory) Create(_ context.Context, cfg model.ModelConfig) (*nodes.ResolvedModel, error) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	name := cfg.ModelName
	if name == "" {
		name = "fake-" + string(cfg.Provider)
	}
	return &nodes.ResolvedModel{
		Chat:     &scriptedModel{script: f.script},
		Provider: cfg.Provider,
		Name:     name,
	}, nil
}

func textReply(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}

func toolCallReply(calls ...schema.ToolCall) *schema.Message {
	return schema.AssistantMessage("", calls)
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

// sequence replies with the given messages in order and fails past the end.
func sequence(msgs ...*schema.Message) replyFunc {
	return func(_ context.Context, call int, _ []*schema.Message, _ bool) (*schema.Message, error) {
		if call >= len(msgs) {
			return nil, fmt.Errorf("unexpected model call %d", call)
		}
		c := *msgs[call]
		return &c, nil
	}
}

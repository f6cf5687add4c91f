package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/copilot-agent/server/internal/agent/graph/prompts"
	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

const (
	NodeLoadHistory  = "LoadHistory"
	NodeAgent        = "Agent"
	NodeToolDispatch = "ToolDispatch"
	NodeCommit       = "Commit"
)

// NewLoadHistoryNode loads the thread from the checkpointer and starts the turn
// delta with the user's message.
func NewLoadHistoryNode(cp model.Checkpointer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) ([]*schema.Message, error) {
		history, err := cp.Load(ctx, in.ThreadID)
		if err != nil {
			return nil, errx.WrapStorage(fmt.Errorf("load thread %s: %w", in.ThreadID, err))
		}

		human := schema.UserMessage(in.Message)
		cfg := model.ModelConfig{}
		if in.ModelConfig != nil {
			cfg = *in.ModelConfig
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.ThreadID = in.ThreadID
			s.ModelConfig = cfg
			s.History = history.Messages
			s.Delta = []*schema.Message{human}
			s.ToolRounds = 0
			s.ToolLimitReached = false
			s.TotalCostUSD = 0
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("thread_id", in.ThreadID).
			Int("history_len", len(history.Messages)).
			Msg("Thread loaded")
		return []*schema.Message{human}, nil
	})
}

// AgentConfig wires the agent node.
type AgentConfig struct {
	Factory       ModelFactory
	ToolInfos     []*schema.ToolInfo
	SystemPrompt  string
	MaxToolRounds int
}

// agentRequest is what the pre-handler hands to the agent lambda.
type agentRequest struct {
	config    model.ModelConfig
	bindTools bool
}

// NewAgentPreHandler builds the request sent to the model: the full ordered
// history, a system prompt when none exists, and a wrap-up notice once the tool
// round limit is reached.
func NewAgentPreHandler(cfg AgentConfig) func(context.Context, []*schema.Message, *model.TurnState) ([]*schema.Message, error) {
	return func(ctx context.Context, _ []*schema.Message, state *model.TurnState) ([]*schema.Message, error) {
		msgs := WithSystemPrompt(state.Messages(), cfg.SystemPrompt)

		if checkAndMarkToolLimit(state, cfg.MaxToolRounds) {
			max := normalizeMaxToolRounds(cfg.MaxToolRounds)
			logx.Warn().
				Str("thread_id", state.ThreadID).
				Int("tool_rounds", state.ToolRounds).
				Int("max_tool_rounds", max).
				Msg("Tool round limit reached - asking model to wrap up")
			msgs = append(msgs, schema.SystemMessage(prompts.ToolLimitNotice(max)))
		}

		logx.Debug().Str("thread_id", state.ThreadID).Int("messages", len(msgs)).Msg("AI thinking...")
		return msgs, nil
	}
}

// NewAgentNode creates the turn function: build a model for this turn's config,
// bind the tool registry, and invoke it with the prepared messages.
func NewAgentNode(cfg AgentConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
		var req agentRequest
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			req = agentRequest{config: s.ModelConfig, bindTools: !s.ToolLimitReached}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		resolved, err := cfg.Factory.Create(ctx, req.config)
		if err != nil {
			return nil, errx.ModelInvocation(fmt.Errorf("create model: %w", err))
		}

		chat := resolved.Chat
		if req.bindTools && len(cfg.ToolInfos) > 0 {
			chat, err = chat.WithTools(cfg.ToolInfos)
			if err != nil {
				return nil, errx.ModelInvocation(fmt.Errorf("bind tools: %w", err))
			}
		}

		ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
			Name:      resolved.Name,
			Type:      string(resolved.Provider),
			Component: components.ComponentOfChatModel,
		})
		out, err := chat.Generate(ctx, msgs)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, errx.Timeout(err)
			}
			return nil, errx.ModelInvocation(err).WithDetail("model", resolved.Name)
		}
		if out == nil {
			return nil, errx.ModelInvocation(errors.New("model returned no message")).WithDetail("model", resolved.Name)
		}

		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.ResolvedModelName = resolved.Name
			return nil
		})
		return out, nil
	})
}

// NewAgentPostHandler normalizes the AI message, records usage cost and appends
// it to the turn delta.
func NewAgentPostHandler() func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.TurnState) (*schema.Message, error) {
		if out.Role == "" {
			out.Role = schema.Assistant
		}
		ensureToolCallIDs(out)

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(state.ResolvedModelName))
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = map[string]any{
				"currency":          "USD",
				"model":             state.ResolvedModelName,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			state.TotalCostUSD += totalC
			logx.Debug().
				Str("thread_id", state.ThreadID).
				Str("node", NodeAgent).
				Str("model", state.ResolvedModelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")
		}

		state.Delta = append(state.Delta, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("thread_id", state.ThreadID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Str("thread_id", state.ThreadID).Msg("AI response ready")
		}
		return out, nil
	}
}

// NewTurnRouterCondition routes after the agent node: tool dispatch when the
// latest AI message asked for tools, commit otherwise or once the limit is hit.
func NewTurnRouterCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		var (
			route        Route
			limitReached bool
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			route = ShouldContinue(s.Delta)
			limitReached = s.ToolLimitReached
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if route == RouteContinue && limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to commit")
			return NodeCommit, nil
		}
		if route == RouteContinue {
			return NodeToolDispatch, nil
		}
		return NodeCommit, nil
	}
}

// NewToolDispatchPreHandler counts tool rounds for the limit.
func NewToolDispatchPreHandler() func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.TurnState) (*schema.Message, error) {
		state.ToolRounds++
		logx.Debug().
			Str("thread_id", state.ThreadID).
			Int("round", state.ToolRounds).
			Int("tool_count", len(in.ToolCalls)).
			Msg("Tool dispatch round")
		return in, nil
	}
}

// NewToolDispatchNode executes every tool call of the AI message. It never fails.
func NewToolDispatchNode(d *Dispatcher) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ai *schema.Message) ([]*schema.Message, error) {
		return d.Dispatch(ctx, ai), nil
	})
}

// NewToolDispatchPostHandler appends tool results to the turn delta.
func NewToolDispatchPostHandler() func(context.Context, []*schema.Message, *model.TurnState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.TurnState) ([]*schema.Message, error) {
		state.Delta = append(state.Delta, out...)
		return out, nil
	}
}

// NewCommitNode persists the turn in one append and builds the caller-facing output.
func NewCommitNode(cp model.Checkpointer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, final *schema.Message) (*model.TurnOutput, error) {
		var (
			threadID string
			cfg      model.ModelConfig
			next     *model.ConversationState
			cost     float64
			calls    int
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			delta := make([]*schema.Message, len(s.Delta))
			copy(delta, s.Delta)
			if n := len(delta); n > 0 && delta[n-1] != nil && len(delta[n-1].ToolCalls) > 0 {
				delta[n-1] = withoutToolCalls(delta[n-1])
			}
			threadID = s.ThreadID
			cfg = s.ModelConfig
			if s.ResolvedModelName != "" {
				cfg.ModelName = s.ResolvedModelName
			}
			cost = s.TotalCostUSD
			for _, m := range delta {
				if m != nil && m.Role == schema.Tool {
					calls++
				}
			}
			next = (&model.ConversationState{ThreadID: s.ThreadID, Messages: s.History}).Append(delta...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := cp.Save(ctx, threadID, next); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("Error saving thread")
			return nil, errx.WrapStorage(err)
		}

		logx.Debug().
			Str("thread_id", threadID).
			Int("messages", len(next.Messages)).
			Float64("turn_cost_usd", cost).
			Msg("Turn committed")

		response := ""
		if final != nil {
			response = strings.TrimSpace(final.Content)
		}
		return &model.TurnOutput{
			Response:  response,
			ThreadID:  threadID,
			Model:     cfg,
			Messages:  model.ViewMessages(next.Messages),
			CostUSD:   cost,
			ToolCalls: calls,
		}, nil
	})
}

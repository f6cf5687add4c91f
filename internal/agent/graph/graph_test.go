package graph_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-agent/server/internal/agent/graph"
	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/graph/tools"
	"github.com/copilot-agent/server/internal/agent/model"
	"github.com/copilot-agent/server/internal/agent/repo"
	errx "github.com/copilot-agent/server/internal/core/error"
)

type harness struct {
	runner  graph.Runner
	factory *fakeFactory
	cp      *repo.MemoryCheckpointer
}

type harnessOpts struct {
	maxToolRounds int
	turnTimeout   time.Duration
	coinGeckoURL  string
}

func newHarness(t *testing.T, reply replyFunc, opts harnessOpts) *harness {
	t.Helper()

	cgURL := opts.coinGeckoURL
	if cgURL == "" {
		cgURL = "http://127.0.0.1:0"
	}
	registry, err := tools.NewDefaultRegistry(tools.NewCoinGeckoClient(tools.CoinGeckoOptions{BaseURL: cgURL}))
	require.NoError(t, err)

	factory := newFakeFactory(reply)
	cp := repo.NewMemoryCheckpointer()
	runner, err := graph.BuildRunner(context.Background(), graph.Config{
		Factory:         factory,
		Checkpointer:    cp,
		Dispatcher:      nodes.NewDispatcher(registry, 2*time.Second, true),
		DefaultProvider: model.ProviderPrimary,
		MaxToolRounds:   opts.maxToolRounds,
		TurnTimeout:     opts.turnTimeout,
	})
	require.NoError(t, err)
	return &harness{runner: runner, factory: factory, cp: cp}
}

func (h *harness) persisted(t *testing.T, threadID string) []*schema.Message {
	t.Helper()
	state, err := h.cp.Load(context.Background(), threadID)
	require.NoError(t, err)
	return state.Messages
}

func roles(msgs []*schema.Message) []schema.RoleType {
	out := make([]schema.RoleType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

// assertToolCorrespondence checks every tool call is answered, in order, right after its AI message.
func assertToolCorrespondence(t *testing.T, msgs []*schema.Message) {
	t.Helper()
	for i, m := range msgs {
		if m.Role != schema.Assistant || len(m.ToolCalls) == 0 {
			continue
		}
		require.GreaterOrEqual(t, len(msgs), i+1+len(m.ToolCalls), "tool results missing after message %d", i)
		for j, call := range m.ToolCalls {
			res := msgs[i+1+j]
			assert.Equal(t, schema.Tool, res.Role)
			assert.Equal(t, call.ID, res.ToolCallID)
		}
	}
}

func TestPlainChatTurn(t *testing.T) {
	h := newHarness(t, sequence(textReply("Hi! How can I help?")), harnessOpts{})

	out, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi! How can I help?", out.Response)
	assert.Regexp(t, `^thread-\d+-[0-9a-f]{8}$`, out.ThreadID)
	assert.Equal(t, model.ProviderPrimary, out.Model.Provider)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "user", out.Messages[0].Role)
	assert.Equal(t, "hello", out.Messages[0].Content)
	assert.Equal(t, "assistant", out.Messages[1].Role)

	calls := h.factory.script.snapshot()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].toolsBound)
	require.NotEmpty(t, calls[0].input)
	assert.Equal(t, schema.System, calls[0].input[0].Role)
	assert.Contains(t, calls[0].input[0].Content, tools.ToolCalculator)

	stored := h.persisted(t, out.ThreadID)
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant}, roles(stored))
}

func TestToolTurnFetchesCryptoPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 67000}}`))
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, sequence(
		toolCallReply(toolCall("call_btc", tools.ToolCryptoPrices, `{"ids":"bitcoin"}`)),
		textReply("Bitcoin is trading at $67,000."),
	), harnessOpts{coinGeckoURL: srv.URL})

	out, err := h.runner.Invoke(context.Background(), model.TurnInput{
		Message:  "What is the price of bitcoin?",
		ThreadID: "thread-crypto",
	})
	require.NoError(t, err)
	assert.Equal(t, "thread-crypto", out.ThreadID)
	assert.Equal(t, "Bitcoin is trading at $67,000.", out.Response)
	assert.Equal(t, 1, out.ToolCalls)

	stored := h.persisted(t, "thread-crypto")
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant, schema.Tool, schema.Assistant}, roles(stored))
	assertToolCorrespondence(t, stored)
	assert.Contains(t, stored[2].Content, "67000")
	assert.Equal(t, tools.ToolCryptoPrices, stored[2].ToolName)

	calls := h.factory.script.snapshot()
	require.Len(t, calls, 2)
	last := calls[1].input[len(calls[1].input)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call_btc", last.ToolCallID)
}

func TestUnknownToolBecomesToolResult(t *testing.T) {
	h := newHarness(t, sequence(
		toolCallReply(toolCall("call_x", "launch_rockets", `{}`)),
		textReply("I can't do that."),
	), harnessOpts{})

	out, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "launch", ThreadID: "thread-unknown"})
	require.NoError(t, err)
	assert.Equal(t, "I can't do that.", out.Response)

	stored := h.persisted(t, "thread-unknown")
	require.Len(t, stored, 4)
	assert.Equal(t, "Error: Tool 'launch_rockets' not found", stored[2].Content)
	assertToolCorrespondence(t, stored)
}

func TestMultiTurnThreadKeepsHistory(t *testing.T) {
	h := newHarness(t, sequence(
		textReply("Nice to meet you, Ada."),
		textReply("Your name is Ada."),
	), harnessOpts{})
	ctx := context.Background()

	first, err := h.runner.Invoke(ctx, model.TurnInput{Message: "My name is Ada"})
	require.NoError(t, err)

	second, err := h.runner.Invoke(ctx, model.TurnInput{Message: "What is my name?", ThreadID: first.ThreadID})
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	require.Len(t, second.Messages, 4)

	calls := h.factory.script.snapshot()
	require.Len(t, calls, 2)
	contents := make([]string, 0)
	for _, m := range calls[1].input {
		if m.Role != schema.System {
			contents = append(contents, m.Content)
		}
	}
	assert.Equal(t, []string{"My name is Ada", "Nice to meet you, Ada.", "What is my name?"}, contents)

	stored := h.persisted(t, first.ThreadID)
	for _, m := range stored {
		assert.NotEqual(t, schema.System, m.Role, "system prompt must not be persisted")
	}
}

func TestParallelToolCallsKeepRequestOrder(t *testing.T) {
	h := newHarness(t, sequence(
		toolCallReply(
			toolCall("call_a", tools.ToolCalculator, `{"expression":"6*7"}`),
			toolCall("call_b", tools.ToolEcho, `{"text":"ping"}`),
			toolCall("call_c", tools.ToolResearch, `{"topic":"llamas"}`),
		),
		textReply("done"),
	), harnessOpts{})

	out, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "go", ThreadID: "thread-par"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ToolCalls)

	stored := h.persisted(t, "thread-par")
	require.Len(t, stored, 6)
	assertToolCorrespondence(t, stored)
	assert.Equal(t, "42", stored[2].Content)
	assert.Equal(t, "Echo: ping", stored[3].Content)
	assert.Contains(t, stored[4].Content, "llamas")
}

func TestMissingToolCallIDsAreSynthesized(t *testing.T) {
	h := newHarness(t, sequence(
		toolCallReply(toolCall("", tools.ToolEcho, `{"text":"x"}`)),
		textReply("ok"),
	), harnessOpts{})

	_, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "echo", ThreadID: "thread-ids"})
	require.NoError(t, err)

	stored := h.persisted(t, "thread-ids")
	require.Len(t, stored, 4)
	require.Len(t, stored[1].ToolCalls, 1)
	assert.True(t, strings.HasPrefix(stored[1].ToolCalls[0].ID, "call_"))
	assertToolCorrespondence(t, stored)
}

func TestToolRoundLimitEndsTurn(t *testing.T) {
	loop := func(_ context.Context, call int, _ []*schema.Message, _ bool) (*schema.Message, error) {
		return toolCallReply(toolCall("", tools.ToolEcho, `{"text":"again"}`)), nil
	}
	h := newHarness(t, loop, harnessOpts{maxToolRounds: 2})

	out, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "loop", ThreadID: "thread-limit"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.ToolCalls)

	calls := h.factory.script.snapshot()
	require.Len(t, calls, 3)
	assert.True(t, calls[0].toolsBound)
	assert.True(t, calls[1].toolsBound)
	assert.False(t, calls[2].toolsBound)
	notice := calls[2].input[len(calls[2].input)-1]
	assert.Equal(t, schema.System, notice.Role)
	assert.Contains(t, notice.Content, "maximum number of tool rounds (2)")

	stored := h.persisted(t, "thread-limit")
	assert.Equal(t, []schema.RoleType{
		schema.User, schema.Assistant, schema.Tool, schema.Assistant, schema.Tool, schema.Assistant,
	}, roles(stored))
	assert.Empty(t, stored[5].ToolCalls)
	assertToolCorrespondence(t, stored)
}

func TestModelFailurePersistsNothing(t *testing.T) {
	failing := func(context.Context, int, []*schema.Message, bool) (*schema.Message, error) {
		return nil, errors.New("connection refused")
	}
	h := newHarness(t, failing, harnessOpts{})

	_, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "hi", ThreadID: "thread-fail"})
	require.Error(t, err)
	var appErr *errx.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errx.CodeModelInvocation, appErr.Code)

	assert.Empty(t, h.persisted(t, "thread-fail"))
}

func TestFactoryFailureIsModelInvocationError(t *testing.T) {
	h := newHarness(t, sequence(textReply("unused")), harnessOpts{})
	h.factory.err = errors.New("GEMINI_API_KEY is not set")

	_, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "hi", ThreadID: "thread-nokey"})
	assert.ErrorIs(t, err, &errx.AppError{Code: errx.CodeModelInvocation})
	assert.Empty(t, h.persisted(t, "thread-nokey"))
}

func TestTurnTimeout(t *testing.T) {
	blocking := func(ctx context.Context, _ int, _ []*schema.Message, _ bool) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, blocking, harnessOpts{turnTimeout: 50 * time.Millisecond})

	_, err := h.runner.Invoke(context.Background(), model.TurnInput{Message: "slow", ThreadID: "thread-slow"})
	assert.ErrorIs(t, err, &errx.AppError{Code: errx.CodeTimeout})
	assert.Empty(t, h.persisted(t, "thread-slow"))
}

func TestInvokeValidatesInput(t *testing.T) {
	h := newHarness(t, sequence(textReply("unused")), harnessOpts{})
	ctx := context.Background()
	hot := float32(1.5)

	cases := []struct {
		name string
		in   model.TurnInput
	}{
		{"empty message", model.TurnInput{Message: "   "}},
		{"temperature out of range", model.TurnInput{Message: "hi", ModelConfig: &model.ModelConfig{Temperature: &hot}}},
		{"unknown provider", model.TurnInput{Message: "hi", ModelConfig: &model.ModelConfig{Provider: "azure"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.runner.Invoke(ctx, tc.in)
			assert.ErrorIs(t, err, &errx.AppError{Code: errx.CodeValidation})
		})
	}
	assert.Empty(t, h.factory.script.snapshot())
}

func TestModelConfigIsPassedPerTurn(t *testing.T) {
	h := newHarness(t, sequence(textReply("a"), textReply("b")), harnessOpts{})
	ctx := context.Background()
	temp := float32(0.2)

	first, err := h.runner.Invoke(ctx, model.TurnInput{
		Message:     "one",
		ModelConfig: &model.ModelConfig{Provider: model.ProviderLocal, ModelName: "llama3", Temperature: &temp},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderLocal, first.Model.Provider)
	assert.Equal(t, "llama3", first.Model.ModelName)

	_, err = h.runner.Invoke(ctx, model.TurnInput{Message: "two", ThreadID: first.ThreadID})
	require.NoError(t, err)

	h.factory.mu.Lock()
	defer h.factory.mu.Unlock()
	require.Len(t, h.factory.configs, 2)
	assert.Equal(t, model.ProviderLocal, h.factory.configs[0].Provider)
	assert.Equal(t, model.ProviderPrimary, h.factory.configs[1].Provider)
	assert.Empty(t, h.factory.configs[1].ModelName)
}

func TestNewThreadIDFormat(t *testing.T) {
	a, b := graph.NewThreadID(), graph.NewThreadID()
	assert.Regexp(t, `^thread-\d+-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

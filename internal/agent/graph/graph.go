package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/graph/observers"
	"github.com/copilot-agent/server/internal/agent/graph/prompts"
	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
	"github.com/copilot-agent/server/pkg/telemetry"
)

const instrumentationName = "copilot-agent/graph"

// Runner executes one conversational turn against a thread.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error)
}

// Config holds everything needed to compose the turn graph end-to-end.
// This is a convenience layer over GraphConfig that also renders the system prompt.
type Config struct {
	Factory         nodes.ModelFactory
	Checkpointer    model.Checkpointer
	Dispatcher      *nodes.Dispatcher
	DefaultProvider model.Provider
	MaxToolRounds   int
	TurnTimeout     time.Duration
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Factory       nodes.ModelFactory
	Checkpointer  model.Checkpointer
	Dispatcher    *nodes.Dispatcher
	SystemPrompt  string
	MaxToolRounds int
}

// GraphBuilder handles the construction of the agent turn graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.TurnOutput]
}

type graphRunner struct {
	runnable        compose.Runnable[model.TurnInput, *model.TurnOutput]
	defaultProvider model.Provider
	turnTimeout     time.Duration
	locks           *threadLocks

	tracer    trace.Tracer
	turns     metric.Int64Counter
	toolCalls metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewThreadID returns a fresh thread id: "thread-<unix millis>-<8 hex>".
func NewThreadID() string {
	return "thread-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return nil, errx.Validation("message is required")
	}

	cfg := model.ModelConfig{}
	if in.ModelConfig != nil {
		cfg = *in.ModelConfig
	}
	cfg = cfg.WithDefault(r.defaultProvider)
	if err := cfg.Validate(); err != nil {
		return nil, errx.Validation(err.Error())
	}
	in.ModelConfig = &cfg

	in.ThreadID = strings.TrimSpace(in.ThreadID)
	if in.ThreadID == "" {
		in.ThreadID = NewThreadID()
		logx.Debug().Str("thread_id", in.ThreadID).Msg("Started new thread")
	}

	unlock := r.locks.Lock(in.ThreadID)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("thread.id", in.ThreadID),
		attribute.String("model.provider", string(cfg.Provider)),
		attribute.String("model.name", cfg.ModelName),
	))
	defer span.End()

	if r.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	elapsed := time.Since(start)

	if err == nil && out == nil {
		err = fmt.Errorf("graph returned no output")
	}
	if err != nil {
		appErr := errx.From(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		r.record(ctx, appErr.Code, cfg.Provider, elapsed, 0)
		logx.Error().
			Err(err).
			Str("thread_id", in.ThreadID).
			Str("code", appErr.Code).
			Dur("elapsed", elapsed).
			Msg("Turn failed")
		return nil, appErr
	}

	span.SetAttributes(
		attribute.String("model.name", out.Model.ModelName),
		attribute.Int("turn.tool_calls", out.ToolCalls),
	)
	r.record(ctx, "OK", cfg.Provider, elapsed, out.ToolCalls)
	logx.Info().
		Str("thread_id", out.ThreadID).
		Str("provider", string(out.Model.Provider)).
		Str("model", out.Model.ModelName).
		Int("tool_calls", out.ToolCalls).
		Float64("cost_usd", out.CostUSD).
		Dur("elapsed", elapsed).
		Msg("Turn completed")
	return out, nil
}

func (r *graphRunner) record(ctx context.Context, outcome string, provider model.Provider, elapsed time.Duration, toolCalls int) {
	// the turn ctx may already be past its deadline; metrics should still land
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("provider", string(provider)),
	)
	r.turns.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	if toolCalls > 0 {
		r.toolCalls.Add(ctx, int64(toolCalls), metric.WithAttributes(attribute.String("provider", string(provider))))
	}
}

// BuildRunner renders the system prompt, builds the graph, and returns a Runner.
func BuildRunner(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}

	summaries := make([]prompts.ToolSummary, 0)
	for _, t := range cfg.Dispatcher.Registry().List() {
		summaries = append(summaries, prompts.ToolSummary{Name: t.Name, Description: t.Description})
	}
	systemPrompt, err := prompts.RenderAgentSystem(ctx, summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Factory:       cfg.Factory,
		Checkpointer:  cfg.Checkpointer,
		Dispatcher:    cfg.Dispatcher,
		SystemPrompt:  systemPrompt,
		MaxToolRounds: cfg.MaxToolRounds,
	})
	if err != nil {
		return nil, err
	}

	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = model.ProviderPrimary
	}

	meter := telemetry.Meter(instrumentationName)
	turns, err := meter.Int64Counter("agent.turns", metric.WithDescription("Completed and failed turns"))
	if err != nil {
		return nil, fmt.Errorf("create turns counter: %w", err)
	}
	toolCalls, err := meter.Int64Counter("agent.tool_calls", metric.WithDescription("Tool executions dispatched by turns"))
	if err != nil {
		return nil, fmt.Errorf("create tool calls counter: %w", err)
	}
	duration, err := meter.Float64Histogram("agent.turn.duration_ms",
		metric.WithDescription("Turn latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	logx.Debug().Int("tools", len(summaries)).Msg("Turn graph built successfully")
	return &graphRunner{
		runnable:        runnable,
		defaultProvider: defaultProvider,
		turnTimeout:     cfg.TurnTimeout,
		locks:           newThreadLocks(),
		tracer:          telemetry.Tracer(instrumentationName),
		turns:           turns,
		toolCalls:       toolCalls,
		duration:        duration,
	}, nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Factory == nil {
		return nil, fmt.Errorf("model factory is nil")
	}
	if config.Checkpointer == nil {
		return nil, fmt.Errorf("checkpointer is nil")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) agentConfig() nodes.AgentConfig {
	return nodes.AgentConfig{
		Factory:       b.config.Factory,
		ToolInfos:     b.config.Dispatcher.Registry().ToolInfos(),
		SystemPrompt:  b.config.SystemPrompt,
		MaxToolRounds: b.config.MaxToolRounds,
	}
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	agentCfg := b.agentConfig()

	steps := []struct {
		name string
		add  func() error
	}{
		{nodes.NodeLoadHistory, func() error {
			return b.graph.AddLambdaNode(nodes.NodeLoadHistory,
				nodes.NewLoadHistoryNode(b.config.Checkpointer),
				compose.WithNodeName(nodes.NodeLoadHistory),
			)
		}},
		{nodes.NodeAgent, func() error {
			return b.graph.AddLambdaNode(nodes.NodeAgent,
				nodes.NewAgentNode(agentCfg),
				compose.WithNodeName(nodes.NodeAgent),
				compose.WithStatePreHandler(nodes.NewAgentPreHandler(agentCfg)),
				compose.WithStatePostHandler(nodes.NewAgentPostHandler()),
			)
		}},
		{nodes.NodeToolDispatch, func() error {
			return b.graph.AddLambdaNode(nodes.NodeToolDispatch,
				nodes.NewToolDispatchNode(b.config.Dispatcher),
				compose.WithNodeName(nodes.NodeToolDispatch),
				compose.WithStatePreHandler(nodes.NewToolDispatchPreHandler()),
				compose.WithStatePostHandler(nodes.NewToolDispatchPostHandler()),
			)
		}},
		{nodes.NodeCommit, func() error {
			return b.graph.AddLambdaNode(nodes.NodeCommit,
				nodes.NewCommitNode(b.config.Checkpointer),
				compose.WithNodeName(nodes.NodeCommit),
			)
		}},
	}

	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeLoadHistory},
		{nodes.NodeLoadHistory, nodes.NodeAgent},
		{nodes.NodeToolDispatch, nodes.NodeAgent},
		{nodes.NodeCommit, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	routerBranch := compose.NewGraphBranch(
		nodes.NewTurnRouterCondition(),
		map[string]bool{
			nodes.NodeToolDispatch: true,
			nodes.NodeCommit:       true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAgent, routerBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding turn router branch")
		return fmt.Errorf("error adding turn router branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("AgentTurn"),
		compose.WithMaxRunSteps(maxRunSteps(b.config.MaxToolRounds)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// maxRunSteps bounds total node executions: load, commit, and two steps per tool
// round plus the final wrap-up agent call.
func maxRunSteps(maxToolRounds int) int {
	if maxToolRounds <= 0 {
		maxToolRounds = nodes.DefaultMaxToolRounds
	}
	steps := 10 + maxToolRounds*2
	if steps < 20 {
		steps = 20
	}
	return steps
}

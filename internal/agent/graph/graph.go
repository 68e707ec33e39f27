package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/askscout/agent/internal/agent/graph/conversations"
	"github.com/askscout/agent/internal/agent/graph/nodes"
	"github.com/askscout/agent/internal/agent/graph/observers"
	"github.com/askscout/agent/internal/agent/graph/prompts"
	agenttools "github.com/askscout/agent/internal/agent/graph/tools"
	"github.com/askscout/agent/internal/agent/model"
	logx "github.com/askscout/agent/pkg/logger"
)

// Runner executes the compiled graph: one Invoke is one full turn on a
// thread, from the new user message to the final assistant answer.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
	// Reset clears the thread's checkpoint, equivalent to starting a fresh
	// conversation under the same identifier.
	Reset(ctx context.Context, threadID string) error
}

// Config holds everything needed to compose the full chat graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the
// Gemini chat model and the conversations manager.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        model.ChatModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Store        model.CheckpointStore
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModel         einomodel.ToolCallingChatModel
	Manager           *conversations.Manager
	Tools             []tool.BaseTool
	SystemPrompt      string
	ModelName         string
	MaxToolRoundTrips int
}

// GraphBuilder handles the construction of the agent conversation graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
	manager  *conversations.Manager
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	// Serialize turns per thread: a second invocation for the same thread
	// waits until the first one has fully committed or aborted, so the
	// checkpoint can never lose an update. Other threads are unaffected.
	unlock := r.manager.Lock(in.ThreadID)
	defer unlock()

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

func (r *graphRunner) Reset(ctx context.Context, threadID string) error {
	unlock := r.manager.Lock(threadID)
	defer unlock()
	return r.manager.Clear(ctx, threadID)
}

// BuildChatGraph composes the chat model, conversations manager, and tool
// registry, builds the graph, and returns a Runner.
func BuildChatGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}

	chatModel, err := nodes.NewGeminiChatModel(ctx, nodes.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   &cfg.Model,
	})
	if err != nil {
		return nil, err
	}

	systemPrompt, err := prompts.RenderSystem(ctx, cfg.Prompt)
	if err != nil {
		return nil, err
	}

	runner, err := BuildRunner(ctx, &GraphConfig{
		ChatModel:         nodes.NewGateway(chatModel),
		Manager:           conversations.NewManager(cfg.Store),
		Tools:             agenttools.QueryTools(),
		SystemPrompt:      systemPrompt,
		ModelName:         cfg.Model.Model,
		MaxToolRoundTrips: cfg.Conversation.Tools.MaxRoundTrips,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Chat graph built successfully")
	return runner, nil
}

// BuildRunner constructs the compiled agent graph and wraps it with the
// per-thread locking runner.
func BuildRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}
	if config.Manager == nil {
		return nil, fmt.Errorf("conversations manager is nil")
	}
	if len(config.Tools) == 0 {
		return nil, fmt.Errorf("tool registry is empty")
	}
	if strings.TrimSpace(config.SystemPrompt) == "" {
		return nil, fmt.Errorf("system prompt is empty")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	boundModel, err := builder.setupTools(ctx)
	if err != nil {
		return nil, err
	}

	builder.addNodes(boundModel)
	builder.addEdges()

	if err := builder.addBranch(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}

	return &graphRunner{runnable: runnable, manager: config.Manager}, nil
}

// setupTools binds the registry's schemas to the chat model and creates the
// tool executor node.
func (b *GraphBuilder) setupTools(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
	toolInfos, err := agenttools.ToolInfos(ctx, b.config.Tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}

	boundModel, err := b.config.ChatModel.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to chat model")
		return nil, fmt.Errorf("failed to bind tools to chat model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools: b.config.Tools,
		// Independent calls of one turn run concurrently; the node joins
		// results back in request order, so the appended tool messages
		// always line up with the assistant's tool_calls sequence.
		ExecuteSequentially: false,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// The model, not the caller, picked a bad name; give it an
			// error observation to self-correct with instead of failing
			// the turn.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning error result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q}", name), nil
		},
		ToolArgumentsHandler: sanitizeToolArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler()),
	)

	return boundModel, nil
}

// sanitizeToolArguments normalizes model-produced arguments before dispatch.
// Best-effort: anything that cannot be fixed up passes through unchanged and
// the tool's own validation reports it.
func sanitizeToolArguments(ctx context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments, nil
	}

	if v, ok := m["query"]; ok {
		switch vv := v.(type) {
		case string:
			m["query"] = strings.TrimSpace(vv)
		default:
			m["query"] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	if v, ok := m["max_results"]; ok {
		switch vv := v.(type) {
		case float64:
			// JSON numbers decode as float64
			m["max_results"] = int(vv)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
				m["max_results"] = n
			} else {
				delete(m, "max_results")
			}
		default:
			delete(m, "max_results")
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// addNodes adds the input loader and chatbot nodes to the graph.
func (b *GraphBuilder) addNodes(boundModel einomodel.ToolCallingChatModel) {
	b.graph.AddLambdaNode(nodes.NodeInputLoader,
		nodes.NewInputLoaderNode(b.config.Manager),
		compose.WithStatePreHandler(nodes.NewInputLoaderPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeChatModel,
		boundModel,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(b.config.SystemPrompt)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.Manager, b.config.ModelName)),
	)
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputLoader},
		{nodes.NodeInputLoader, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranch creates the conditional edge after the chatbot node: tool calls
// loop through the tool executor, a final answer ends the run.
func (b *GraphBuilder) addBranch() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolRouterCondition(b.config.MaxToolRoundTrips),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool router branch")
		return fmt.Errorf("error adding tool router branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps as a backstop beyond the round-trip bound.
	maxSteps := 10 + b.config.MaxToolRoundTrips*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

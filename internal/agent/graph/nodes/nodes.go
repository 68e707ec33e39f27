package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/askscout/agent/internal/agent/graph/conversations"
	"github.com/askscout/agent/internal/agent/model"
	errx "github.com/askscout/agent/internal/core/error"
	logx "github.com/askscout/agent/pkg/logger"
)

// Graph node names.
const (
	NodeInputLoader  = "input_loader"
	NodeChatModel    = "chatbot"
	NodeToolExecutor = "tool_executor"
)

// NewInputLoaderPreHandler seeds the per-invocation state before the input
// loader runs.
func NewInputLoaderPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if strings.TrimSpace(in.ThreadID) == "" {
			return in, fmt.Errorf("thread id is required")
		}
		if strings.TrimSpace(in.Query) == "" {
			return in, fmt.Errorf("query is required")
		}
		s.ThreadID = in.ThreadID
		s.ToolRoundTrips = 0
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputLoaderNode creates the node that loads the thread's checkpointed
// history into state and emits the new user message. Nothing is persisted
// here: the checkpoint is written only when the run produces a final answer.
func NewInputLoaderNode(mm *conversations.Manager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		history, err := mm.LoadHistory(ctx, input.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("load thread history: %w", err)
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.History = history
			return nil
		}); err != nil {
			return nil, fmt.Errorf("seed state history: %w", err)
		}

		return []*schema.Message{schema.UserMessage(input.Query)}, nil
	})
}

// NewChatModelPreHandler appends the incoming messages (the new user message,
// or tool results looping back) to the state history and builds the outbound
// context as [system] + history. The system prompt is never stored in the
// thread log.
func NewChatModelPreHandler(systemPrompt string) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)

		out := make([]*schema.Message, 0, len(state.History)+1)
		out = append(out, schema.SystemMessage(systemPrompt))
		out = append(out, state.History...)

		logx.Debug().Str("thread_id", state.ThreadID).Int("context_messages", len(out)).Msg("AI thinking...")
		return out, nil
	}
}

// NewChatModelPostHandler appends the assistant message to the state history,
// accumulates usage cost, and persists the full thread log once the message
// is final (no tool calls). Persisting only on the final path keeps failed
// runs from leaving partial checkpoints behind.
func NewChatModelPostHandler(
	mm *conversations.Manager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned nil message")
		}

		recordUsageCost(out, state, modelName)

		// Some providers omit tool_call IDs; synthesize them so every tool
		// result can reference its originating call.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
			return out, nil
		}

		logx.Debug().Str("thread_id", state.ThreadID).Msg("AI response ready")
		if err := mm.Persist(ctx, state.ThreadID, state.History); err != nil {
			logx.Error().Str("thread_id", state.ThreadID).Err(err).Msg("failed to persist thread checkpoint")
			return nil, fmt.Errorf("persist thread checkpoint: %w", err)
		}
		return out, nil
	}
}

// recordUsageCost attaches per-call usage cost to the message Extra and
// accumulates the running total in state.
func recordUsageCost(out *schema.Message, state *model.AppState, modelName string) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

	logx.Debug().
		Str("thread_id", state.ThreadID).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Float64("total_cost_usd", state.TotalCostUSD).
		Msg("LLM usage")
}

// NewToolRouterCondition routes the assistant message either to the tool
// executor or to END. It also enforces the round-trip bound: a model that
// keeps requesting tools past the limit fails the run with
// ErrToolLoopExceeded instead of looping forever.
func NewToolRouterCondition(maxRoundTrips int) func(context.Context, *schema.Message) (string, error) {
	maxRoundTrips = normalizeMaxRoundTrips(maxRoundTrips)
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input == nil || len(input.ToolCalls) == 0 {
			logx.Debug().Msg("No tool calls - routing to end")
			return compose.END, nil
		}

		var rounds int
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.ToolRoundTrips++
			rounds = state.ToolRoundTrips
			return nil
		}); err != nil {
			return "", fmt.Errorf("access state: %w", err)
		}

		if rounds > maxRoundTrips {
			logx.Warn().
				Int("round_trips", rounds).
				Int("max_round_trips", maxRoundTrips).
				Msg("Tool round-trip limit exceeded - aborting run")
			return "", errx.NewToolLoopExceeded(maxRoundTrips)
		}

		logx.Debug().Int("tool_count", len(input.ToolCalls)).Int("round_trip", rounds).Msg("Routing to ToolExecutor")
		return NodeToolExecutor, nil
	}
}

// NewToolExecutorPreHandler logs each tool execution phase.
func NewToolExecutorPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		logx.Debug().
			Int("round_trip", state.ToolRoundTrips).
			Str("thread_id", state.ThreadID).
			Msg("Tool execution phase")
		return in, nil
	}
}

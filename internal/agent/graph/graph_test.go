package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/askscout/agent/internal/agent/graph/conversations"
	"github.com/askscout/agent/internal/agent/graph/nodes"
	agenttools "github.com/askscout/agent/internal/agent/graph/tools"
	"github.com/askscout/agent/internal/agent/model"
	"github.com/askscout/agent/internal/agent/repo"
)

// scriptedChatModel replays a fixed sequence of assistant messages, one per
// Generate call, regardless of input.
type scriptedChatModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	calls     int
}

func (m *scriptedChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.responses) {
		return nil, errors.New("no scripted response available")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not scripted")
}

func (m *scriptedChatModel) WithTools(_ []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type fakeToolInput struct {
	Query string `json:"query"`
}

type fakeToolOutput struct {
	Echo string `json:"echo"`
}

// newFakeTool builds a tool that echoes its input, optionally after a delay
// or with a forced failure.
func newFakeTool(name string, delay time.Duration, failWith error) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "test tool",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: "string", Required: true},
			}),
		},
		func(ctx context.Context, in *fakeToolInput) (*fakeToolOutput, error) {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if failWith != nil {
				return nil, failWith
			}
			return &fakeToolOutput{Echo: name + ":" + in.Query}, nil
		},
	)
}

func toolCall(id, name, query string) schema.ToolCall {
	return schema.ToolCall{
		ID: id,
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: fmt.Sprintf("{\"query\":%q}", query),
		},
	}
}

func assistantWithCalls(calls ...schema.ToolCall) *schema.Message {
	return schema.AssistantMessage("", calls)
}

func buildTestRunner(t *testing.T, cm einomodel.ToolCallingChatModel, store model.CheckpointStore, ts []tool.BaseTool, maxRoundTrips int) Runner {
	t.Helper()
	runner, err := BuildRunner(context.Background(), &GraphConfig{
		ChatModel:         nodes.NewGateway(cm),
		Manager:           conversations.NewManager(store),
		Tools:             ts,
		SystemPrompt:      "You are a test assistant.",
		ModelName:         "test-model",
		MaxToolRoundTrips: maxRoundTrips,
	})
	require.NoError(t, err)
	return runner
}

func loadMessages(t *testing.T, store model.CheckpointStore, threadID string) []*schema.Message {
	t.Helper()
	state, err := store.Load(context.Background(), threadID)
	require.NoError(t, err)
	return state.Messages
}

func TestRunTerminatesWithoutTools(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("hello there", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("fake_search", 0, nil)}, 3)

	answer, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello there", answer)
	require.Equal(t, 1, cm.calls)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 2)
	require.Equal(t, schema.User, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, schema.Assistant, msgs[1].Role)
	require.Equal(t, "hello there", msgs[1].Content)
}

func TestToolRoundTripPersistsResultsInOrder(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		assistantWithCalls(
			toolCall("call_a", "tool_a", "alpha"),
			toolCall("call_b", "tool_b", "beta"),
		),
		schema.AssistantMessage("done", nil),
	}}
	ts := []tool.BaseTool{
		newFakeTool("tool_a", 0, nil),
		newFakeTool("tool_b", 0, nil),
	}
	runner := buildTestRunner(t, cm, store, ts, 3)

	answer, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "search both"})
	require.NoError(t, err)
	require.Equal(t, "done", answer)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 5)
	require.Equal(t, schema.User, msgs[0].Role)
	require.Equal(t, schema.Assistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 2)
	require.Equal(t, schema.Tool, msgs[2].Role)
	require.Equal(t, "call_a", msgs[2].ToolCallID)
	require.Contains(t, msgs[2].Content, "tool_a:alpha")
	require.Equal(t, schema.Tool, msgs[3].Role)
	require.Equal(t, "call_b", msgs[3].ToolCallID)
	require.Contains(t, msgs[3].Content, "tool_b:beta")
	require.Equal(t, schema.Assistant, msgs[4].Role)
	require.Equal(t, "done", msgs[4].Content)
}

func TestConcurrentToolOrderingIsRequestOrder(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		assistantWithCalls(
			toolCall("call_a", "tool_fast_a", "a"),
			toolCall("call_b", "tool_slow", "b"),
			toolCall("call_c", "tool_fast_c", "c"),
		),
		schema.AssistantMessage("done", nil),
	}}
	ts := []tool.BaseTool{
		newFakeTool("tool_fast_a", 0, nil),
		newFakeTool("tool_slow", 200*time.Millisecond, nil),
		newFakeTool("tool_fast_c", 0, nil),
	}
	runner := buildTestRunner(t, cm, store, ts, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "go"})
	require.NoError(t, err)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 6)
	// Results line up with request order even though call_b finished last.
	require.Equal(t, "call_a", msgs[2].ToolCallID)
	require.Equal(t, "call_b", msgs[3].ToolCallID)
	require.Equal(t, "call_c", msgs[4].ToolCallID)
}

func TestToolFailureIsIsolated(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		assistantWithCalls(
			toolCall("call_ok", "tool_ok", "x"),
			toolCall("call_bad", "tool_bad", "y"),
		),
		schema.AssistantMessage("recovered", nil),
	}}
	ts := []tool.BaseTool{
		agenttools.Isolated(newFakeTool("tool_ok", 0, nil)),
		agenttools.Isolated(newFakeTool("tool_bad", 0, errors.New("backend down"))),
	}
	runner := buildTestRunner(t, cm, store, ts, 3)

	answer, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "try"})
	require.NoError(t, err)
	require.Equal(t, "recovered", answer)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 5)
	require.Contains(t, msgs[2].Content, "tool_ok:x")
	require.Contains(t, msgs[3].Content, "backend down")
	require.Contains(t, msgs[3].Content, "error")
}

func TestUnknownToolIsIsolated(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		assistantWithCalls(toolCall("call_x", "no_such_tool", "x")),
		schema.AssistantMessage("sorry", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	answer, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "do it"})
	require.NoError(t, err)
	require.Equal(t, "sorry", answer)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 4)
	require.Equal(t, schema.Tool, msgs[2].Role)
	require.Contains(t, msgs[2].Content, "unknown_tool")
}

func TestModelFailureLeavesCheckpointUntouched(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	seeded := []*schema.Message{
		schema.UserMessage("earlier question"),
		schema.AssistantMessage("earlier answer", nil),
	}
	require.NoError(t, store.Save(context.Background(), "t1", seeded))

	cm := &scriptedChatModel{err: errors.New("connection refused")}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "hello?"})
	require.Error(t, err)
	require.ErrorContains(t, err, "model unavailable")

	// The failed run never persisted anything: not even the user message.
	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 2)
	require.Equal(t, "earlier question", msgs[0].Content)
	require.Equal(t, "earlier answer", msgs[1].Content)
}

func TestToolLoopExceededAbortsRun(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	// The model keeps asking for tools and never produces a final answer.
	loop := make([]*schema.Message, 0, 4)
	for i := 0; i < 4; i++ {
		loop = append(loop, assistantWithCalls(toolCall(fmt.Sprintf("call_%d", i), "tool_a", "again")))
	}
	cm := &scriptedChatModel{responses: loop}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 2)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "spin"})
	require.Error(t, err)
	require.ErrorContains(t, err, "tool loop exceeded")

	n, err := store.MessageCount(context.Background(), "t1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("first answer", nil),
		schema.AssistantMessage("second answer", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "hello"})
	require.NoError(t, err)
	answer, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "and then?"})
	require.NoError(t, err)
	require.Equal(t, "second answer", answer)

	msgs := loadMessages(t, store, "t1")
	require.Len(t, msgs, 4)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, "first answer", msgs[1].Content)
	require.Equal(t, "and then?", msgs[2].Content)
	require.Equal(t, "second answer", msgs[3].Content)
}

func TestThreadsAreIsolated(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("for t1", nil),
		schema.AssistantMessage("for t2", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "one"})
	require.NoError(t, err)
	_, err = runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t2", Query: "two"})
	require.NoError(t, err)

	t1 := loadMessages(t, store, "t1")
	require.Len(t, t1, 2)
	for _, m := range t1 {
		require.NotContains(t, m.Content, "t2")
	}
	t2 := loadMessages(t, store, "t2")
	require.Len(t, t2, 2)
	require.Equal(t, "two", t2[0].Content)
}

func TestResetClearsThread(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("hi", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "hello"})
	require.NoError(t, err)
	require.NoError(t, runner.Reset(context.Background(), "t1"))

	n, err := store.MessageCount(context.Background(), "t1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEmptyInputRejected(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage("hi", nil),
	}}
	runner := buildTestRunner(t, cm, store, []tool.BaseTool{newFakeTool("tool_a", 0, nil)}, 3)

	_, err := runner.Invoke(context.Background(), model.QueryInput{ThreadID: "", Query: "hello"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "thread id"))

	_, err = runner.Invoke(context.Background(), model.QueryInput{ThreadID: "t1", Query: "  "})
	require.Error(t, err)
}

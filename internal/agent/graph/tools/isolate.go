package tools

import (
	"context"
	"encoding/json"
	"fmt"

	logx "github.com/askscout/agent/pkg/logger"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// isolatedTool converts any handler failure into a structured error payload
// returned as a regular tool result. One failing tool must never abort the
// turn: the model sees the error text and adapts, the same way it reacts to
// any other tool observation.
type isolatedTool struct {
	inner tool.InvokableTool
}

// Isolated wraps an invokable tool with the failure-isolation contract.
func Isolated(t tool.InvokableTool) tool.InvokableTool {
	return &isolatedTool{inner: t}
}

func (t *isolatedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *isolatedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (out string, err error) {
	name := "unknown"
	if info, infoErr := t.inner.Info(ctx); infoErr == nil && info != nil {
		name = string(info.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("tool_name", name).Any("panic", r).Msg("tool handler panicked")
			out, err = errorPayload(name, fmt.Sprintf("panic: %v", r)), nil
		}
	}()

	result, runErr := t.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	if runErr != nil {
		logx.Warn().Str("tool_name", name).Err(runErr).Msg("tool execution failed; returning error result")
		return errorPayload(name, runErr.Error()), nil
	}
	return result, nil
}

func errorPayload(name, message string) string {
	b, err := json.Marshal(map[string]string{
		"error": message,
		"tool":  name,
	})
	if err != nil {
		return fmt.Sprintf("{\"error\":%q}", message)
	}
	return string(b)
}

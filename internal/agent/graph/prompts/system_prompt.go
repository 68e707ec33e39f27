package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/askscout/agent/internal/agent/graph/tools"
	"github.com/askscout/agent/internal/agent/model"
)

//go:embed template/system_prompt.txt
var systemPromptTemplate string

// RenderSystem renders the assistant system prompt via the Eino prompt
// component, which both formats the template and emits prompt callbacks.
func RenderSystem(ctx context.Context, config model.PromptConfig) (string, error) {
	name := strings.TrimSpace(config.AssistantName)
	if name == "" {
		name = "Scout"
	}
	specialty := strings.TrimSpace(config.Specialty)
	if specialty == "" {
		specialty = "research and current information"
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPromptTemplate),
	)
	vars := map[string]any{
		"AssistantName": name,
		"Specialty":     specialty,
		"WebSearchTool": tools.ToolWebSearch,
		"WikipediaTool": tools.ToolWikipediaSearch,
		"ArxivTool":     tools.ToolArxivSearch,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

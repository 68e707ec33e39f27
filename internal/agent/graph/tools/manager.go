package tools

import (
	"context"
	"fmt"

	logx "github.com/askscout/agent/pkg/logger"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool names as exposed to the chat model. The registry is fixed at startup;
// the model picks among these by name at runtime.
const (
	ToolWebSearch       = "web_search"
	ToolWikipediaSearch = "wikipedia_search"
	ToolArxivSearch     = "arxiv_search"
)

// QueryTools returns the retrieval tool registry. Every tool is wrapped with
// Isolated so a failing handler surfaces as an error payload the model can
// read, never as a run failure.
func QueryTools() []tool.BaseTool {
	return []tool.BaseTool{
		Isolated(NewWebSearchTool()),
		Isolated(NewWikipediaSearchTool()),
		Isolated(NewArxivSearchTool()),
	}
}

// ToolInfos resolves the schema declarations to bind to the chat model.
func ToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("failed to resolve tool info")
			return nil, fmt.Errorf("resolve tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

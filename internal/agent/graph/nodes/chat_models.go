package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/askscout/agent/internal/agent/model"
	errx "github.com/askscout/agent/internal/core/error"
	logx "github.com/askscout/agent/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   *model.ChatModelConfig
}

// NewGeminiChatModel creates the Gemini chat model used by the chatbot node.
func NewGeminiChatModel(ctx context.Context, config ChatModelConfig) (einomodel.ToolCallingChatModel, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("chat model config is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Model.Model,
		Temperature: &config.Model.Temperature,
		MaxTokens:   &config.Model.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	return chatModel, nil
}

// Gateway adapts any tool-calling chat model so that transport or provider
// failures surface as ErrModelUnavailable. The run fails wholesale on such an
// error and the thread checkpoint stays untouched, so a retry is safe.
type Gateway struct {
	inner einomodel.ToolCallingChatModel
}

// NewGateway wraps a chat model with the unavailable-error contract.
func NewGateway(inner einomodel.ToolCallingChatModel) *Gateway {
	return &Gateway{inner: inner}
}

func (g *Gateway) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := g.inner.Generate(ctx, in, opts...)
	if err != nil {
		logx.Error().Err(err).Msg("chat model generate failed")
		return nil, errx.WrapModel(err)
	}
	return out, nil
}

func (g *Gateway) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := g.inner.Stream(ctx, in, opts...)
	if err != nil {
		logx.Error().Err(err).Msg("chat model stream failed")
		return nil, errx.WrapModel(err)
	}
	return out, nil
}

func (g *Gateway) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := g.inner.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	return &Gateway{inner: bound}, nil
}

var _ einomodel.ToolCallingChatModel = (*Gateway)(nil)

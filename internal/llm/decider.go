// Package llm wraps the decision-maker behind a narrow interface so the
// workflow can be driven by fakes in tests and by an OpenAI-compatible
// chat model in production.
package llm

import (
	"context"
	"fmt"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/config"
)

// Decider maps a message history plus a tool schema to either free text or
// tool invocations. Implementations must be safe for concurrent use by
// independent workflow runs.
type Decider interface {
	Decide(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)
}

// Client is the production Decider backed by an OpenAI-compatible endpoint.
type Client struct {
	base model.ToolCallingChatModel
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.ModelAPIKey == "" {
		return nil, fmt.Errorf("model api key is required")
	}

	maxTokens := cfg.ModelMaxTokens
	chatModel, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		BaseURL:   cfg.ModelBaseURL,
		APIKey:    cfg.ModelAPIKey,
		Model:     cfg.ModelName,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	return &Client{base: chatModel}, nil
}

// Decide invokes the model with the given tool schemas bound. With no tools
// it is a plain completion call.
func (c *Client) Decide(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	m := model.BaseChatModel(c.base)
	if len(tools) > 0 {
		withTools, err := c.base.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		m = withTools
	}

	resp, err := m.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("model generate: %w", err)
	}
	return resp, nil
}

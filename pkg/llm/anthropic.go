package llm

import (
	"context"
	"fmt"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cognitodev/launchpad/pkg/logger"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"go.uber.org/zap"
)

type AnthropicGateway struct {
	client *anthropic.Client
	model  string
	system string
}

func NewAnthropicGateway(apiKey string, model string, system string) *AnthropicGateway {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicGateway{
		client: client,
		model:  model,
		system: system,
	}
}

func (g *AnthropicGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	messages := []anthropic.MessageParam{}
	if g.system != "" {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(g.system)))
	}

	for _, m := range history {
		if m.Role == types.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}

	startTime := time.Now()
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.F(g.model),
		MaxTokens:   anthropic.F(int64(opts.MaxOutputTokens)),
		Temperature: anthropic.F(opts.Temperature),
		Messages:    anthropic.F(messages),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	logger.Debug("Received response from Claude API",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(startTime)))

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}

	return resp.Content[0].Text, nil
}

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type GeminiGateway struct {
	client *genai.Client
	model  string
	system string
}

func NewGeminiGateway(ctx context.Context, apiKey string, model string, system string) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGateway{
		client: client,
		model:  model,
		system: system,
	}, nil
}

func (g *GeminiGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleAssistant {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	temperature := float32(opts.Temperature)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(opts.MaxOutputTokens),
		Temperature:     &temperature,
	}
	if g.system != "" {
		config.SystemInstruction = genai.NewContentFromText(g.system, genai.Role(genai.RoleUser))
	}

	startTime := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	logger.Debug("Received response from gemini",
		zap.String("model", g.model),
		zap.Int("turns", len(history)),
		zap.Duration("duration", time.Since(startTime)))

	return resp.Text(), nil
}

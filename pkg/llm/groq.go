package llm

import (
	"context"
	"fmt"
	"strings"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/jpoz/groq"
)

// GroqGateway is fast enough to be used for template classification.
type GroqGateway struct {
	client *groq.Client
	model  string
	system string
}

func NewGroqGateway(apiKey string, model string, system string) *GroqGateway {
	return &GroqGateway{
		client: groq.NewClient(groq.WithAPIKey(apiKey)),
		model:  model,
		system: system,
	}
}

func (g *GroqGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	// the groq client has no context support, so honour cancellation before the call at least
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messages := []groq.Message{}
	if g.system != "" {
		messages = append(messages, groq.Message{Role: "system", Content: g.system})
	}
	for _, m := range history {
		messages = append(messages, groq.Message{Role: string(m.Role), Content: m.Text})
	}

	chatCompletion, err := g.client.CreateChatCompletion(groq.CompletionCreateParams{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no choices in groq response")
	}

	return strings.TrimSpace(chatCompletion.Choices[0].Message.Content), nil
}

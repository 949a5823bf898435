package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	ollama "github.com/ollama/ollama/api"
)

const DefaultOllamaURL = "http://127.0.0.1:11434"

type OllamaGateway struct {
	client *ollama.Client
	model  string
	system string
}

func NewOllamaGateway(baseURL string, model string, system string) (*OllamaGateway, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama URL: %w", err)
	}

	return &OllamaGateway{
		client: ollama.NewClient(u, http.DefaultClient),
		model:  model,
		system: system,
	}, nil
}

func (g *OllamaGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	messages := []ollama.Message{}
	if g.system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: g.system})
	}
	for _, m := range history {
		messages = append(messages, ollama.Message{Role: string(m.Role), Content: m.Text})
	}

	req := &ollama.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   new(bool),
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxOutputTokens,
		},
	}

	var reply strings.Builder
	respFunc := func(resp ollama.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	}

	if err := g.client.Chat(ctx, req, respFunc); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	return reply.String(), nil
}

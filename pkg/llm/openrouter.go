package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cognitodev/launchpad/pkg/logger"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"go.uber.org/zap"
)

const OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterMessage represents a message in OpenRouter API format
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenRouterRequest represents the request body for OpenRouter API
type OpenRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenRouterMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

// OpenRouterResponse represents the response from OpenRouter API
type OpenRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type OpenRouterGateway struct {
	httpClient *http.Client
	apiKey     string
	model      string
	system     string
	// url is overridden in tests
	url string
}

func NewOpenRouterGateway(apiKey string, model string, system string) *OpenRouterGateway {
	return &OpenRouterGateway{
		httpClient: http.DefaultClient,
		apiKey:     apiKey,
		model:      model,
		system:     system,
		url:        OpenRouterAPIURL,
	}
}

func (g *OpenRouterGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	messages := []OpenRouterMessage{}
	if g.system != "" {
		messages = append(messages, OpenRouterMessage{Role: "system", Content: g.system})
	}
	for _, m := range history {
		messages = append(messages, OpenRouterMessage{Role: string(m.Role), Content: m.Text})
	}

	maxTokens := opts.MaxOutputTokens
	temperature := opts.Temperature
	reqBody := OpenRouterRequest{
		Model:       g.model,
		Messages:    messages,
		Stream:      false,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))
	req.Header.Set("HTTP-Referer", "https://launchpad.cognitodev.space")
	req.Header.Set("X-Title", "Launchpad")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			logger.Error(fmt.Errorf("OpenRouter authentication failed"),
				zap.Int("status_code", resp.StatusCode),
				zap.String("body", string(body)),
				zap.String("key_preview", maskAPIKey(g.apiKey)))
		}
		return "", fmt.Errorf("OpenRouter API error: %d - %s", resp.StatusCode, string(body))
	}

	var openRouterResp OpenRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&openRouterResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(openRouterResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenRouter response")
	}

	return openRouterResp.Choices[0].Message.Content, nil
}

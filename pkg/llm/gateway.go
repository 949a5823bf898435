package llm

import (
	"context"
	"fmt"
	"strings"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
)

// Gateway turns a message history into the model's raw reply text.
type Gateway interface {
	Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error)

func (f GatewayFunc) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	return f(ctx, history, opts)
}

const (
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderGroq       = "groq"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

const (
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultAnthropicModel  = "claude-3-7-sonnet-latest"
	DefaultGroqModel       = "llama-3.3-70b-versatile"
	DefaultOllamaModel     = "qwen2.5-coder:7b"
	DefaultOpenRouterModel = "anthropic/claude-sonnet-4.5"
)

type GatewayOpts struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL is only used by the ollama provider
	BaseURL string
	// System overrides the artifact instructions sent as the system prompt
	System string
}

// NewGateway builds a gateway for the named provider.
func NewGateway(ctx context.Context, opts GatewayOpts) (Gateway, error) {
	system := opts.System
	if system == "" {
		system = SystemPrompt()
	}

	provider := strings.ToLower(opts.Provider)
	if provider == "" {
		provider = ProviderGemini
	}

	if provider != ProviderOllama && opts.APIKey == "" {
		return nil, fmt.Errorf("no api key configured for %s", provider)
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiGateway(ctx, opts.APIKey, modelOrDefault(opts.Model, DefaultGeminiModel), system)
	case ProviderAnthropic:
		return NewAnthropicGateway(opts.APIKey, modelOrDefault(opts.Model, DefaultAnthropicModel), system), nil
	case ProviderGroq:
		return NewGroqGateway(opts.APIKey, modelOrDefault(opts.Model, DefaultGroqModel), system), nil
	case ProviderOllama:
		return NewOllamaGateway(opts.BaseURL, modelOrDefault(opts.Model, DefaultOllamaModel), system)
	case ProviderOpenRouter:
		return NewOpenRouterGateway(opts.APIKey, modelOrDefault(opts.Model, DefaultOpenRouterModel), system), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}

func modelOrDefault(model string, def string) string {
	if model == "" {
		return def
	}
	return model
}

func maskAPIKey(key string) string {
	if key == "" {
		return "<empty>"
	}
	if len(key) <= 8 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", key[:4], key[len(key)-4:])
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cognitodev/launchpad/pkg/llm"
	"github.com/cognitodev/launchpad/pkg/param"
	"github.com/cognitodev/launchpad/pkg/sandbox"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

func addGatewayFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", llm.ProviderGemini, "Model provider (gemini, anthropic, groq, ollama, openrouter)")
	cmd.Flags().String("model", "", "Model name; the provider default when empty")
	cmd.Flags().String("classifier-provider", "", "Provider for template classification; --provider when empty")
	cmd.Flags().String("classifier-model", "", "Model for template classification")
	cmd.Flags().Float64("rate-limit", 5, "Maximum model requests per second")
}

// newGateways builds the generation gateway and the classification gateway from flags.
// Both are rate limited by one shared limiter.
func newGateways(ctx context.Context) (llm.Gateway, llm.Gateway, error) {
	limiter := rate.NewLimiter(rate.Limit(viper.GetFloat64("rate-limit")), 10)

	gateway, err := newGateway(ctx, viper.GetString("provider"), viper.GetString("model"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	gateway = llm.NewRateLimited(gateway, limiter)

	classifierProvider := viper.GetString("classifier-provider")
	if classifierProvider == "" {
		return gateway, gateway, nil
	}

	classifier, err := newGateway(ctx, classifierProvider, viper.GetString("classifier-model"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create classifier gateway: %w", err)
	}

	return gateway, llm.NewRateLimited(classifier, limiter), nil
}

func newGateway(ctx context.Context, provider string, model string) (llm.Gateway, error) {
	p := param.Get()

	opts := llm.GatewayOpts{
		Provider: provider,
		Model:    model,
	}

	switch strings.ToLower(provider) {
	case llm.ProviderAnthropic:
		opts.APIKey = p.AnthropicAPIKey
	case llm.ProviderGroq:
		opts.APIKey = p.GroqAPIKey
	case llm.ProviderOpenRouter:
		opts.APIKey = p.OpenRouterAPIKey
	case llm.ProviderOllama:
		opts.BaseURL = p.OllamaHost
	default:
		opts.APIKey = p.GeminiAPIKey
	}

	return llm.NewGateway(ctx, opts)
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("sandbox-root", os.TempDir(), "Directory that holds project sandboxes")
	cmd.Flags().Duration("probe-interval", 500*time.Millisecond, "How often dev server ports are probed")
}

// newLocalRuntime probes every port a starter template's dev server may listen on.
func newLocalRuntime(catalog *starter.Catalog) *sandbox.LocalRuntime {
	seen := map[int]bool{}
	ports := []int{}
	for _, t := range catalog.Templates() {
		for _, port := range t.ReadyPorts {
			if !seen[port] {
				seen[port] = true
				ports = append(ports, port)
			}
		}
	}

	return sandbox.NewLocalRuntime(sandbox.LocalRuntimeOpts{
		Root:          viper.GetString("sandbox-root"),
		ProbePorts:    ports,
		ProbeInterval: viper.GetDuration("probe-interval"),
	})
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewGateway(t *testing.T) {
	ctx := context.Background()

	_, err := NewGateway(ctx, GatewayOpts{Provider: "anthropic"})
	assert.ErrorContains(t, err, "no api key")

	_, err = NewGateway(ctx, GatewayOpts{Provider: "mystery", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown model provider")

	g, err := NewGateway(ctx, GatewayOpts{Provider: "OpenRouter", APIKey: "k"})
	require.NoError(t, err)
	or, ok := g.(*OpenRouterGateway)
	require.True(t, ok)
	assert.Equal(t, DefaultOpenRouterModel, or.model)
	assert.Equal(t, SystemPrompt(), or.system)

	g, err = NewGateway(ctx, GatewayOpts{Provider: "ollama", Model: "llama3"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaGateway{}, g)

	g, err = NewGateway(ctx, GatewayOpts{Provider: "groq", APIKey: "k", System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "be brief", g.(*GroqGateway).system)
}

func TestOpenRouterGateway(t *testing.T) {
	var got OpenRouterRequest
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"react"}}]}`))
	}))
	defer server.Close()

	g := NewOpenRouterGateway("secret-key", "some/model", "sys")
	g.url = server.URL

	reply, err := g.Generate(context.Background(), []types.Message{
		{Role: types.RoleUser, Text: "hello"},
		{Role: types.RoleAssistant, Text: "hi"},
	}, types.ClassifyOptions)
	require.NoError(t, err)
	assert.Equal(t, "react", reply)

	assert.Equal(t, "Bearer secret-key", auth)
	assert.Equal(t, "some/model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, OpenRouterMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, OpenRouterMessage{Role: "assistant", Content: "hi"}, got.Messages[2])
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 200, *got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.1, *got.Temperature, 0.0001)
}

func TestOpenRouterGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	g := NewOpenRouterGateway("k", "m", "")
	g.url = server.URL

	_, err := g.Generate(context.Background(), nil, types.GenerateFilesOptions)
	assert.ErrorContains(t, err, "502 - upstream down")
}

func TestRateLimited(t *testing.T) {
	fake := NewFakeGateway("one", "two")
	limited := NewRateLimited(fake, rate.NewLimiter(rate.Every(time.Hour), 1))

	reply, err := limited.Generate(context.Background(), nil, types.ClassifyOptions)
	require.NoError(t, err)
	assert.Equal(t, "one", reply)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Generate(ctx, nil, types.ClassifyOptions)
	assert.ErrorContains(t, err, "rate limiter wait failed")
	assert.Len(t, fake.Calls(), 1)
}

func TestFakeGatewayExhausted(t *testing.T) {
	_, err := NewFakeGateway().Generate(context.Background(), nil, types.ClassifyOptions)
	assert.ErrorContains(t, err, "no reply scripted")
}

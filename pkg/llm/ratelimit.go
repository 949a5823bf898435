package llm

import (
	"context"
	"fmt"
	"time"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"golang.org/x/time/rate"
)

// RateLimited holds every call until the limiter admits it.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited allows 5 requests per second with a burst of 10 when limiter is nil.
func NewRateLimited(next Gateway, limiter *rate.Limiter) *RateLimited {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 10)
	}
	return &RateLimited{
		next:    next,
		limiter: limiter,
	}
}

func (r *RateLimited) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return r.next.Generate(ctx, history, opts)
}

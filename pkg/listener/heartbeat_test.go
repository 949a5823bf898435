package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatPingsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var healthy, broken atomic.Int32
	deps := []dependency{
		{name: "db", ping: func(context.Context) error { healthy.Add(1); return nil }},
		{name: "api", ping: func(context.Context) error { broken.Add(1); return errors.New("connection refused") }},
	}

	done := make(chan int, 1)
	go func() { done <- heartbeat(ctx, 5*time.Millisecond, deps...) }()

	assert.Eventually(t, func() bool { return broken.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case failures := <-done:
		assert.GreaterOrEqual(t, failures, 3)
		assert.GreaterOrEqual(t, healthy.Load(), int32(3))
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop after cancel")
	}
}

func TestHeartbeatStopsWithoutTicking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	failures := heartbeat(ctx, time.Hour, dependency{name: "db", ping: func(context.Context) error {
		called = true
		return nil
	}})

	assert.Zero(t, failures)
	assert.False(t, called)
}

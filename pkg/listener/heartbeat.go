package listener

import (
	"context"
	"sync"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/persistence"
	"github.com/cognitodev/launchpad/pkg/realtime"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

var heartbeatOnce sync.Once

// dependency is something the worker needs reachable while sessions are running.
type dependency struct {
	name string
	ping func(ctx context.Context) error
}

// StartHeartbeat keeps the Postgres pool and the Centrifugo API warm for the lifetime of ctx.
// Calling it again is a no-op.
func StartHeartbeat(ctx context.Context) {
	heartbeatOnce.Do(func() {
		go heartbeat(ctx, heartbeatInterval,
			dependency{name: "postgres", ping: persistence.Ping},
			dependency{name: "centrifugo", ping: realtime.Ping},
		)
	})
}

// heartbeat pings every dependency once per interval and returns the number of failed
// pings when ctx is done.
func heartbeat(ctx context.Context, interval time.Duration, deps ...dependency) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Started dependency heartbeat", zap.Duration("interval", interval), zap.Int("dependencies", len(deps)))

	failures := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping dependency heartbeat", zap.Int("failures", failures))
			return failures
		case <-ticker.C:
		}

		for _, dep := range deps {
			if err := dep.ping(ctx); err != nil && ctx.Err() == nil {
				failures++
				logger.Warn("Heartbeat check failed", zap.String("dependency", dep.name), zap.Error(err))
			}
		}
	}
}

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cognitodev/launchpad/pkg/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testhelpers.CreatePostgresContainer(ctx, testhelpers.CreatePostgresContainerOpts{
		CreateSchema: true,
		Fixtures:     true,
	})
	require.NoError(t, err)
	defer pg.Close(context.Background())

	require.NoError(t, InitPostgres(ctx, PostgresOpts{URI: pg.ConnectionString, MaxConns: 4}))
	defer ClosePostgres()

	payload := map[string]string{"sessionId": "s1", "userId": "u1", "prompt": "Build a todo app"}
	id, err := EnqueueWork(ctx, "new_build", payload)
	require.NoError(t, err)
	assert.Len(t, id, 12)

	stats, err := GetQueueStats(ctx, "new_build")
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Total: 1, InFlight: 0, Available: 1}, *stats)

	items, err := ClaimWork(ctx, "new_build", 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, 0, items[0].AttemptCount)

	decoded := map[string]string{}
	require.NoError(t, json.Unmarshal(items[0].Payload, &decoded))
	assert.Equal(t, payload, decoded)

	// claimed rows are not handed out again until they time out
	again, err := ClaimWork(ctx, "new_build", 5, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, FailWork(ctx, id, errors.New("gateway down")))
	retried, err := ClaimWork(ctx, "new_build", 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].AttemptCount)

	require.NoError(t, CompleteWork(ctx, id))
	stats, err = GetQueueStats(ctx, "new_build")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestReplayEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testhelpers.CreatePostgresContainer(ctx, testhelpers.CreatePostgresContainerOpts{CreateSchema: true})
	require.NoError(t, err)
	defer pg.Close(context.Background())

	require.NoError(t, InitPostgres(ctx, PostgresOpts{URI: pg.ConnectionString}))
	defer ClosePostgres()

	start := time.Now().Add(-time.Second)
	require.NoError(t, StoreReplayEvent(ctx, "u1", "s1", map[string]interface{}{"eventType": "session-phase", "phase": "ready"}))
	require.NoError(t, StoreReplayEvent(ctx, "u2", "s1", map[string]interface{}{"eventType": "session-phase"}))

	events, err := ListReplayEvents(ctx, "u1", "s1", start)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ready", events[0].MessageData["phase"])

	deleted, err := DeleteReplayEventsBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

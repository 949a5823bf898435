package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cognitodev/launchpad/pkg/realtime/types"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishRequest struct {
	Method string `json:"method"`
	Params struct {
		Channel string                 `json:"channel"`
		Data    map[string]interface{} `json:"data"`
	} `json:"params"`
}

func newCentrifugo(t *testing.T) (*sync.Mutex, *[]publishRequest) {
	t.Helper()

	mu := &sync.Mutex{}
	received := &[]publishRequest{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "apikey secret", r.Header.Get("Authorization"))

		req := publishRequest{}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		*received = append(*received, req)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	Init(context.Background(), &types.Config{Address: server.URL, APIKey: "secret"})
	t.Cleanup(func() { centrifugoConfig = nil })

	return mu, received
}

func TestSendEvent(t *testing.T) {
	mu, received := newCentrifugo(t)

	err := SendEvent(context.Background(), types.Recipient{UserIDs: []string{"u1", "u2"}}, types.SessionStatusEvent{
		SessionID: "s1",
		Phase:     "ready",
		Status:    "Running",
		URL:       "http://localhost:5173",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *received, 2)
	assert.Equal(t, "publish", (*received)[0].Method)
	assert.Equal(t, "s1#u1", (*received)[0].Params.Channel)
	assert.Equal(t, "s1#u2", (*received)[1].Params.Channel)
	assert.Equal(t, "session-status", (*received)[0].Params.Data["eventType"])
	assert.Equal(t, "http://localhost:5173", (*received)[0].Params.Data["url"])
}

func TestPing(t *testing.T) {
	assert.Error(t, Ping(context.Background()))

	mu, received := newCentrifugo(t)
	require.NoError(t, Ping(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *received, 1)
	assert.Equal(t, "info", (*received)[0].Method)
}

func TestObserver(t *testing.T) {
	mu, received := newCentrifugo(t)

	o := NewObserver(context.Background(), types.Recipient{UserIDs: []string{"u1"}})
	o.Observe(session.Update{
		SessionID: "s1",
		Phase:     session.PhasePatching,
		PrevPhase: session.PhasePatching,
		Status:    "Making changes in 1 file(s)",
		LogLines:  []string{"Making changes in src/App.tsx"},
		Files:     []session.FileChange{{Path: "src/App.tsx", Content: "blue"}},
	})
	o.Close()
	o.Close()

	// ignored once closed
	o.Observe(session.Update{SessionID: "s1"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *received, 3)
	assert.Equal(t, "session-log", (*received)[0].Params.Data["eventType"])
	assert.Equal(t, []interface{}{"Making changes in src/App.tsx"}, (*received)[0].Params.Data["lines"])
	assert.Equal(t, "session-file", (*received)[1].Params.Data["eventType"])
	assert.Equal(t, "src/App.tsx", (*received)[1].Params.Data["path"])
	assert.Equal(t, "session-status", (*received)[2].Params.Data["eventType"])
	assert.Equal(t, "patching", (*received)[2].Params.Data["phase"])
}

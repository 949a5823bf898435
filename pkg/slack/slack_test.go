package slack

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPostsFailures(t *testing.T) {
	mu := sync.Mutex{}
	posted := []map[string]string{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat.postMessage"), r.URL.Path)
		assert.NoError(t, r.ParseForm())

		mu.Lock()
		posted = append(posted, map[string]string{
			"channel": r.Form.Get("channel"),
			"blocks":  r.Form.Get("blocks"),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "channel": "C1", "ts": "1.0"})
	}))
	defer server.Close()

	n := NewNotifier("xoxb-test", "#builds", slack.OptionAPIURL(server.URL+"/"))

	// not a failure
	n.Observe(session.Update{SessionID: "s1", Phase: session.PhaseReady, PrevPhase: session.PhaseStartingServer})
	// already failed
	n.Observe(session.Update{SessionID: "s1", Phase: session.PhaseFailed, PrevPhase: session.PhaseFailed})

	n.Observe(session.Update{
		SessionID: "s1",
		Phase:     session.PhaseFailed,
		PrevPhase: session.PhaseInstallingDeps,
		Failure:   session.ReasonInstallError,
		Status:    "Error installing dependencies",
		LogLines:  []string{"npm install completed with exit code 1", "ERROR: dependency install failed with exit code 1"},
	})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posted, 1)
	assert.Equal(t, "#builds", posted[0]["channel"])
	assert.Contains(t, posted[0]["blocks"], "install-error")
	assert.Contains(t, posted[0]["blocks"], "ERROR: dependency install failed with exit code 1")
}

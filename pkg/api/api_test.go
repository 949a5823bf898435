package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cognitodev/launchpad/pkg/llm"
	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/cognitodev/launchpad/pkg/sandbox"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const todoReply = `<boltArtifact id="todo-app" title="Todo App">
<boltAction type="file" filePath="src/App.tsx">export default function App() { return null }</boltAction>
</boltArtifact>`

const blueReply = `<boltArtifact id="todo-app" title="Todo App">
<boltAction type="file" filePath="src/App.tsx">export default function App() { return "blue" }</boltAction>
</boltArtifact>`

type testServer struct {
	server  *Server
	router  *gin.Engine
	manager *session.Manager
	gateway *llm.FakeGateway
}

func newTestServer(t *testing.T, gateway llm.Gateway, relay llm.Gateway) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := starter.MustLoad()
	hub := NewHub()
	runtime := sandbox.NewMemoryRuntime().
		Script("npm install", sandbox.Script{Output: []string{"added 212 packages in 4s"}}).
		Script("npx vite --host", sandbox.Script{
			Output: []string{"  Local:   http://localhost:5173/"},
			Hold:   true,
		})

	manager, err := session.NewManager(4, session.Deps{
		Gateway:  gateway,
		Runtime:  runtime,
		Catalog:  catalog,
		Observer: hub,
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	if relay == nil {
		relay = gateway
	}

	s := NewServer(ServerOpts{
		Manager: manager,
		Catalog: catalog,
		Gateway: relay,
		Hub:     hub,
	})

	fake, _ := gateway.(*llm.FakeGateway)
	return &testServer{server: s, router: s.Router(), manager: manager, gateway: fake}
}

func (ts *testServer) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, llm.NewFakeGateway(), nil)

	w := ts.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Server is running"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(t, http.MethodOptions, "/chat", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestTemplateRelay(t *testing.T) {
	react, ok := starter.MustLoad().Get("react")
	require.True(t, ok)

	t.Run("react", func(t *testing.T) {
		ts := newTestServer(t, llm.NewFakeGateway("react"), nil)

		w := ts.do(t, http.MethodPost, "/template", TemplateRequest{Prompt: "a todo app"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp TemplateResponse
		decode(t, w, &resp)
		assert.Equal(t, "react", resp.Template)
		assert.Equal(t, react.Prompts(), resp.Prompts)
		assert.Equal(t, []string{react.Starter}, resp.UIPrompts)

		calls := ts.gateway.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, types.ClassifyOptions, calls[0].Opts)
	})

	t.Run("unknown template", func(t *testing.T) {
		ts := newTestServer(t, llm.NewFakeGateway("python"), nil)

		w := ts.do(t, http.MethodPost, "/template", TemplateRequest{Prompt: "a django site"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"Invalid template type"}`, w.Body.String())
	})

	t.Run("gateway failure", func(t *testing.T) {
		ts := newTestServer(t, llm.NewFakeGateway().Fail(errors.New("quota exceeded")), nil)

		w := ts.do(t, http.MethodPost, "/template", TemplateRequest{Prompt: "a todo app"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"message":"Internal server error"}`, w.Body.String())
	})

	t.Run("missing prompt", func(t *testing.T) {
		ts := newTestServer(t, llm.NewFakeGateway(), nil)

		w := ts.do(t, http.MethodPost, "/template", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, ts.gateway.Calls())
	})
}

func TestChatRelay(t *testing.T) {
	ts := newTestServer(t, llm.NewFakeGateway(todoReply), nil)

	w := ts.do(t, http.MethodPost, "/chat", ChatRequest{Messages: []ChatMessage{
		{Role: "user", Parts: []ChatPart{{Text: "Build a "}, {Text: "todo app"}}},
		{Role: "model", Parts: []ChatPart{{Text: "ok"}}},
		{Role: "user", Parts: []ChatPart{{Text: "make it blue"}}},
	}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, todoReply, resp["response"])

	calls := ts.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.GenerateFilesOptions, calls[0].Opts)
	assert.Equal(t, []types.Message{
		{Role: types.RoleUser, Text: "Build a todo app"},
		{Role: types.RoleAssistant, Text: "ok"},
		{Role: types.RoleUser, Text: "make it blue"},
	}, calls[0].History)

	failing := newTestServer(t, llm.NewFakeGateway().Fail(errors.New("boom")), nil)
	w = failing.do(t, http.MethodPost, "/chat", ChatRequest{Messages: []ChatMessage{{Role: "user", Parts: []ChatPart{{Text: "hi"}}}}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, w.Body.String())

	w = failing.do(t, http.MethodPost, "/chat", ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTemplates(t *testing.T) {
	ts := newTestServer(t, llm.NewFakeGateway(), nil)

	w := ts.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Templates []starter.Template `json:"templates"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Templates, 3)
	assert.Equal(t, "react", resp.Templates[0].ID)
	assert.Equal(t, []int{5173}, resp.Templates[0].ReadyPorts)
}

func TestSessionLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts := newTestServer(t, llm.NewFakeGateway("react", todoReply, blueReply), nil)

	w := ts.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{Prompt: "Build a todo app"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var created map[string]string
	decode(t, w, &created)
	id := created["id"]
	require.NotEmpty(t, id)

	o, err := ts.manager.Get(id)
	require.NoError(t, err)
	_, err = o.WaitFor(ctx, session.PhaseReady, session.PhaseFailed)
	require.NoError(t, err)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot session.Session
	decode(t, w, &snapshot)
	assert.Equal(t, session.PhaseReady, snapshot.Phase)
	assert.Equal(t, "http://localhost:5173", snapshot.URL)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", SendMessageRequest{Message: "make it blue"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &snapshot)
	assert.Equal(t, session.PhaseReady, snapshot.Phase)
	assert.Equal(t, `export default function App() { return "blue" }`, snapshot.Files["src/App.tsx"])

	w = ts.do(t, http.MethodPut, "/api/sessions/"+id+"/files", PutFileRequest{Path: "README.md", Content: "one\ntwo\n"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "one\ntwo\n", o.Snapshot().Files["README.md"])

	w = ts.do(t, http.MethodPut, "/api/sessions/"+id+"/files", PutFileRequest{Path: "../escape.txt", Content: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	patch := "--- a/README.md\n+++ b/README.md\n@@ -1,2 +1,2 @@\n one\n-two\n+three\n"
	w = ts.do(t, http.MethodPatch, "/api/sessions/"+id+"/files", PatchFileRequest{Path: "README.md", Patch: patch})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "one\nthree\n", o.Snapshot().Files["README.md"])

	w = ts.do(t, http.MethodPatch, "/api/sessions/"+id+"/files", PatchFileRequest{Path: "missing.md", Patch: patch})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"http://localhost:5173?refresh=1700000000000"}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, llm.NewFakeGateway().Fail(errors.New("quota exceeded")), nil)

	w := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	idle, err := ts.manager.CreateWithID("idle")
	require.NoError(t, err)

	w = ts.do(t, http.MethodPost, "/api/sessions/idle/messages", SendMessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/idle/refresh", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorIs(t, idle.Start(ctx, "Build a todo app"), session.ErrSessionFailed)

	w = ts.do(t, http.MethodPost, "/api/sessions/idle/messages", SendMessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusGone, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/nope/messages", SendMessageRequest{Message: "hello"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessageOutlivesRequest(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	gateway := llm.GatewayFunc(func(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
		calls++
		switch calls {
		case 1:
			return "react", nil
		case 2:
			return todoReply, nil
		}
		select {
		case <-release:
			return blueReply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	ts := newTestServer(t, gateway, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o, err := ts.manager.CreateWithID("slow")
	require.NoError(t, err)
	require.NoError(t, o.Start(ctx, "Build a todo app"))

	reqCtx, cancelRequest := context.WithCancel(context.Background())
	body, err := json.Marshal(SendMessageRequest{Message: "make it blue"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/slow/messages", bytes.NewReader(body)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.router.ServeHTTP(w, req)
	}()

	_, err = o.WaitFor(ctx, session.PhasePatching)
	require.NoError(t, err)

	// the client going away must not fail the session
	cancelRequest()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, session.PhasePatching, o.Snapshot().Phase)

	close(release)
	<-done

	assert.Equal(t, http.StatusOK, w.Code)
	s := o.Snapshot()
	assert.Equal(t, session.PhaseReady, s.Phase)
	assert.Empty(t, s.Failure)
	assert.Equal(t, `export default function App() { return "blue" }`, s.Files["src/App.tsx"])
}

func TestStreamEvents(t *testing.T) {
	ts := newTestServer(t, llm.NewFakeGateway(), nil)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	o, err := ts.manager.CreateWithID("live")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/live/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first EventMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Session)
	assert.Equal(t, session.PhaseIdle, first.Session.Phase)

	require.NoError(t, o.EditFile(context.Background(), "README.md", "hello"))

	var next EventMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "update", next.Type)
	require.NotNil(t, next.Update)
	require.Len(t, next.Update.Files, 1)
	assert.Equal(t, "README.md", next.Update.Files[0].Path)
	assert.Equal(t, "hello", next.Update.Files[0].Content)
	assert.True(t, next.Update.Files[0].Created)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/sessions/missing/events", nil)
	assert.Error(t, err)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	updates, unsubscribe := hub.Subscribe("s1")

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Observe(session.Update{SessionID: "s1", Status: "busy"})
	}
	hub.Observe(session.Update{SessionID: "other"})

	assert.Len(t, updates, subscriberBuffer)
	assert.Equal(t, 1, hub.subscriberCount("s1"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.subscriberCount("s1"))
}

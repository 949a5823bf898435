package chat

import (
	"fmt"
	"sync"
	"testing"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryOrder(t *testing.T) {
	h := NewHistory()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Snapshot())

	h.Append(types.RoleUser, "starter context")
	h.Append(types.RoleUser, "Build a todo app")
	h.Append(types.RoleAssistant, "<boltArtifact/>")
	h.Append(types.RoleUser, "make it blue")

	assert.Equal(t, []types.Message{
		{Role: types.RoleUser, Text: "starter context"},
		{Role: types.RoleUser, Text: "Build a todo app"},
		{Role: types.RoleAssistant, Text: "<boltArtifact/>"},
		{Role: types.RoleUser, Text: "make it blue"},
	}, h.Snapshot())
	assert.Equal(t, 4, h.Len())
}

func TestSnapshotIsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(types.RoleUser, "one")

	snap := h.Snapshot()
	snap[0].Text = "changed"
	h.Append(types.RoleAssistant, "two")

	require.Len(t, snap, 1)
	assert.Equal(t, "one", h.Snapshot()[0].Text)
}

func TestConcurrentAppend(t *testing.T) {
	h := NewHistory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(types.RoleUser, fmt.Sprintf("msg %d", i))
			_ = h.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, h.Len())
}

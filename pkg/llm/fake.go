package llm

import (
	"context"
	"fmt"
	"sync"

	types "github.com/cognitodev/launchpad/pkg/llm/types"
)

// FakeCall records one Generate invocation on a FakeGateway.
type FakeCall struct {
	History []types.Message
	Opts    types.GenerateOptions
}

type fakeReply struct {
	text string
	err  error
}

// FakeGateway replays scripted replies in order. It is used by tests and the offline build command.
type FakeGateway struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []FakeCall
}

func NewFakeGateway(replies ...string) *FakeGateway {
	f := &FakeGateway{}
	for _, r := range replies {
		f.Reply(r)
	}
	return f
}

// Reply queues a successful reply.
func (f *FakeGateway) Reply(text string) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fakeReply{text: text})
	return f
}

// Fail queues an error.
func (f *FakeGateway) Fail(err error) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fakeReply{err: err})
	return f
}

func (f *FakeGateway) Generate(ctx context.Context, history []types.Message, opts types.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, FakeCall{
		History: append([]types.Message(nil), history...),
		Opts:    opts,
	})

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(f.replies) == 0 {
		return "", fmt.Errorf("fake gateway: no reply scripted for call %d", len(f.calls))
	}

	next := f.replies[0]
	f.replies = f.replies[1:]
	return next.text, next.err
}

// Calls returns a copy of every call made so far.
func (f *FakeGateway) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

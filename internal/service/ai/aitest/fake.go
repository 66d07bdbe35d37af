// Package aitest provides an in-memory chat model for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/other-side/backend/internal/service/ai"
)

// Call records one model invocation.
type Call struct {
	Messages []*schema.Message
	Options  *model.Options
}

// FakeModel replies with queued texts; the last reply repeats once the queue drains.
type FakeModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []Call
}

// New returns a FakeModel answering with replies in order.
func New(replies ...string) *FakeModel {
	return &FakeModel{replies: replies}
}

// Failing returns a FakeModel whose every call fails with err.
func Failing(err error) *FakeModel {
	return &FakeModel{err: err}
}

// Generate implements model.BaseChatModel.
func (f *FakeModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	reply, err := f.record(input, opts)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(reply, nil), nil
}

// Stream implements model.BaseChatModel, emitting the reply word by word.
func (f *FakeModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reply, err := f.record(input, opts)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitAfter(reply, " ")
	chunks := make([]*schema.Message, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// BindTools implements model.ChatModel.
func (f *FakeModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakeModel) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastCall returns the most recent invocation.
func (f *FakeModel) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}

// Factory wraps f as a ModelFactory.
func (f *FakeModel) Factory() ai.ModelFactory {
	return func(context.Context) (model.ChatModel, error) {
		return f, nil
	}
}

func (f *FakeModel) record(input []*schema.Message, opts []model.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{
		Messages: input,
		Options:  model.GetCommonOptions(&model.Options{}, opts...),
	})
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

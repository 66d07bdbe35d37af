package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/other-side/backend/internal/config"
	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/internal/model/chat"
)

var (
	// ErrEmptyResponse means the model returned no text block.
	ErrEmptyResponse = errors.New("model returned no text")
	// ErrUnknownRole means a transcript turn carried a role other than user or assistant.
	ErrUnknownRole = errors.New("unknown message role")
)

// ModelFactory builds the hosted chat model. It is called lazily on first use.
type ModelFactory func(ctx context.Context) (model.ChatModel, error)

// Request is one completion call.
type Request struct {
	// System is optional; when empty no system turn is sent.
	System     string
	Messages   []chat.Message
	Generation config.Generation
}

// Options tune a Service.
type Options struct {
	Timeout   time.Duration
	Streaming bool
}

type runtime struct {
	chatModel  model.ChatModel
	withSystem compose.Runnable[map[string]any, *schema.Message]
	plain      compose.Runnable[map[string]any, *schema.Message]
}

// Service wraps calls to the hosted completion API. The model and its chains
// are built at most once per process; a failed build is retried on the next call.
type Service struct {
	factory ModelFactory
	opts    Options

	group   singleflight.Group
	current atomic.Pointer[runtime]
	builds  atomic.Int32
}

// NewService creates a Service that builds its model with factory on first use.
func NewService(factory ModelFactory, opts Options) *Service {
	return &Service{factory: factory, opts: opts}
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.opts.Streaming
}

// Timeout returns the per-call deadline, zero when unbounded.
func (s *Service) Timeout() time.Duration {
	return s.opts.Timeout
}

// Builds reports how many times the model has been constructed successfully.
func (s *Service) Builds() int {
	return int(s.builds.Load())
}

// Complete sends req and returns the first text block of the reply.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	rt, err := s.runtime(ctx)
	if err != nil {
		return "", err
	}

	input, err := buildChainInput(req)
	if err != nil {
		return "", err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	response, err := rt.pick(req).Invoke(ctx, input, generationOptions(req.Generation))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	text := FirstText(response)
	if text == "" {
		return "", ErrEmptyResponse
	}

	logging.FromContext(ctx).Debug("model call completed",
		zap.Int("turns", len(req.Messages)),
		zap.Int("max_tokens", req.Generation.MaxTokens),
		zap.Int("length", len(text)),
		zap.Duration("elapsed", time.Since(started)))
	return text, nil
}

// Stream sends req and returns the reply as a chunk stream. The caller owns the
// deadline on ctx and must close the reader.
func (s *Service) Stream(ctx context.Context, req Request) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	rt, err := s.runtime(ctx)
	if err != nil {
		return nil, err
	}

	input, err := buildChainInput(req)
	if err != nil {
		return nil, err
	}

	stream, err := rt.pick(req).Stream(ctx, input, generationOptions(req.Generation))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func (s *Service) runtime(ctx context.Context) (*runtime, error) {
	if rt := s.current.Load(); rt != nil {
		return rt, nil
	}

	v, err, _ := s.group.Do("runtime", func() (any, error) {
		if rt := s.current.Load(); rt != nil {
			return rt, nil
		}
		rt, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		s.current.Store(rt)
		s.builds.Add(1)
		logging.FromContext(ctx).Info("chat model initialized")
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*runtime), nil
}

func (s *Service) build(ctx context.Context) (*runtime, error) {
	if s.factory == nil {
		return nil, fmt.Errorf("failed to create chat model: no model configured")
	}

	chatModel, err := s.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	withSystem, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	))
	if err != nil {
		return nil, err
	}

	plain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	))
	if err != nil {
		return nil, err
	}

	return &runtime{chatModel: chatModel, withSystem: withSystem, plain: plain}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, tpl prompt.ChatTemplate) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tpl)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return runnable, nil
}

func (rt *runtime) pick(req Request) compose.Runnable[map[string]any, *schema.Message] {
	if strings.TrimSpace(req.System) == "" {
		return rt.plain
	}
	return rt.withSystem
}

func generationOptions(gen config.Generation) compose.Option {
	opts := make([]model.Option, 0, 2)
	if gen.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(gen.MaxTokens))
	}
	opts = append(opts, model.WithTemperature(gen.Temperature))
	return compose.WithChatModelOption(opts...)
}

func buildChainInput(req Request) (map[string]any, error) {
	history, err := buildHistoryMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"system":  req.System,
		"history": history,
	}, nil
}

func buildHistoryMessages(messages []chat.Message) ([]*schema.Message, error) {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, msg.Role)
		}
	}
	return history, nil
}

// FirstText extracts the first text block of a model reply.
func FirstText(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text
	}
	for _, part := range msg.MultiContent {
		if part.Type == schema.ChatMessagePartTypeText {
			return strings.TrimSpace(part.Text)
		}
	}
	return ""
}

// Package dialogue implements the three dialogue-practice operations: persona
// generation, one chat turn, and end-of-session reflection.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/config"
	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
	"github.com/zhouzirui/other-side/backend/internal/service/ai"
)

// ReflectionCount is the number of reflection questions requested and accepted.
const ReflectionCount = 3

var (
	ErrTopicRequired              = errors.New("topic is required")
	ErrPersonaAndMessagesRequired = errors.New("persona and messages are required")
	ErrInvalidRole                = errors.New("message role must be user or assistant")
)

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrTopicRequired) ||
		errors.Is(err, ErrPersonaAndMessagesRequired) ||
		errors.Is(err, ErrInvalidRole)
}

// Completer is the gateway used by Service.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
}

// Generations carries the per-operation model knobs.
type Generations struct {
	Persona    config.Generation
	Chat       config.Generation
	Reflection config.Generation
}

// GenerationsFrom picks the knobs out of cfg.
func GenerationsFrom(cfg config.AIConfig) Generations {
	return Generations{Persona: cfg.Persona, Chat: cfg.Chat, Reflection: cfg.Reflection}
}

// Service builds prompts, calls the gateway and reshapes the replies. It keeps
// no conversation state; every call carries the persona and transcript it needs.
type Service struct {
	llm Completer
	gen Generations
}

// NewService creates a dialogue service.
func NewService(llm Completer, gen Generations) *Service {
	return &Service{llm: llm, gen: gen}
}

// GeneratePersona invents a conversation partner for topic.
func (s *Service) GeneratePersona(ctx context.Context, topic, userStance string) (persona.Persona, error) {
	if strings.TrimSpace(topic) == "" {
		return persona.Persona{}, ErrTopicRequired
	}

	text, err := s.llm.Complete(ctx, ai.Request{
		Messages:   []chat.Message{{Role: chat.RoleUser, Content: BuildPersonaPrompt(topic, userStance)}},
		Generation: s.gen.Persona,
	})
	if err != nil {
		return persona.Persona{}, fmt.Errorf("generate persona: %w", err)
	}

	generated, err := ai.DecodeJSON[persona.Persona](text)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("generate persona: %w", err)
	}
	if err := generated.Validate(); err != nil {
		return persona.Persona{}, fmt.Errorf("generate persona: %w: %v", ai.ErrMalformedOutput, err)
	}

	logging.FromContext(ctx).Info("persona generated",
		zap.String("topic", topic),
		zap.String("persona", generated.Name),
		zap.Int("beliefs", len(generated.CoreBeliefs)))
	return generated, nil
}

// ChatRequest validates a chat turn and builds the gateway request for it.
func (s *Service) ChatRequest(p *persona.Persona, messages []chat.Message, topic, userStance string) (ai.Request, error) {
	if err := validateTranscript(p, messages); err != nil {
		return ai.Request{}, err
	}
	return ai.Request{
		System:     BuildChatSystemPrompt(*p, topic, userStance),
		Messages:   messages,
		Generation: s.gen.Chat,
	}, nil
}

// Chat returns the persona's next reply to the running transcript.
func (s *Service) Chat(ctx context.Context, p *persona.Persona, messages []chat.Message, topic, userStance string) (string, error) {
	req, err := s.ChatRequest(p, messages, topic, userStance)
	if err != nil {
		return "", err
	}

	reply, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	logging.FromContext(ctx).Info("chat reply generated",
		zap.String("persona", p.Name),
		zap.Int("turns", len(messages)),
		zap.Int("length", len(reply)))
	return reply, nil
}

// Reflect asks for exactly ReflectionCount questions about the transcript.
func (s *Service) Reflect(ctx context.Context, p *persona.Persona, messages []chat.Message, topic string) ([]string, error) {
	if err := validateTranscript(p, messages); err != nil {
		return nil, err
	}

	text, err := s.llm.Complete(ctx, ai.Request{
		Messages:   []chat.Message{{Role: chat.RoleUser, Content: BuildReflectionPrompt(*p, messages, topic)}},
		Generation: s.gen.Reflection,
	})
	if err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}

	questions, err := ai.DecodeJSON[[]string](text)
	if err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}
	if len(questions) != ReflectionCount {
		return nil, fmt.Errorf("reflection: %w: got %d questions", ai.ErrMalformedOutput, len(questions))
	}
	for i, q := range questions {
		questions[i] = strings.TrimSpace(q)
		if questions[i] == "" {
			return nil, fmt.Errorf("reflection: %w: empty question", ai.ErrMalformedOutput)
		}
	}
	return questions, nil
}

func validateTranscript(p *persona.Persona, messages []chat.Message) error {
	if p == nil || len(messages) == 0 {
		return ErrPersonaAndMessagesRequired
	}
	for _, msg := range messages {
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleAssistant {
			return ErrInvalidRole
		}
	}
	return nil
}

// Package conversation is the client side of a practice session: it sequences
// persona generation, chat turns and reflection against the dialogue endpoint
// and holds the transcript in memory.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/handler/dialogue"
	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
)

// Phase is the UI mode of a conversation.
type Phase int

const (
	PhaseSelect Phase = iota
	PhaseChat
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseSelect:
		return "select"
	case PhaseChat:
		return "chat"
	case PhaseEnd:
		return "end"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Inline error strings shown to the user.
const (
	MsgPersonaFailed = "Failed to generate persona"
	MsgReplyFailed   = "Failed to get reply"
)

var (
	ErrBusy         = errors.New("conversation: a request is already in flight")
	ErrWrongPhase   = errors.New("conversation: not allowed in this phase")
	ErrNoPersona    = errors.New("conversation: no persona")
	ErrEmptyTopic   = errors.New("conversation: topic is empty")
	ErrEmptyMessage = errors.New("conversation: message is empty")
)

// Opener is the synthetic first line the persona says.
func Opener(name, topic string) string {
	return fmt.Sprintf("Hi, I'm %s. I heard we were going to talk about %s. I'll be honest — I feel pretty strongly about this. What's on your mind?", name, topic)
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conversation) { c.logger = l }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// Conversation holds one practice session. Only one persona or chat call may
// be in flight at a time; a second one fails with ErrBusy.
type Conversation struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time

	mu             sync.Mutex
	epoch          uint64
	phase          Phase
	persona        *persona.Persona
	messages       []chat.ChatMessage
	topic          string
	userStance     string
	loadingPersona bool
	loadingReply   bool
	reflection     []string
	err            string
}

// New 创建会话状态机，初始处于选择话题阶段
func New(transport Transport, opts ...Option) *Conversation {
	c := &Conversation{
		transport: transport,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartConversation generates a persona for topic and moves select → chat,
// seeding the transcript with the persona's opener. On failure the phase stays
// select and InlineError reports MsgPersonaFailed.
func (c *Conversation) StartConversation(ctx context.Context, topic, stance string) error {
	topic = strings.TrimSpace(topic)
	stance = strings.TrimSpace(stance)
	if topic == "" {
		return ErrEmptyTopic
	}

	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.phase != PhaseSelect {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.topic = topic
	c.userStance = stance
	c.loadingPersona = true
	c.err = ""
	epoch := c.epoch
	c.mu.Unlock()

	var resp dialogue.PersonaResponse
	err := c.transport.Send(ctx, dialogue.PersonaRequest{
		Type:       dialogue.TypeGeneratePersona,
		Topic:      topic,
		UserStance: stance,
	}, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrWrongPhase
	}
	c.loadingPersona = false

	if err != nil {
		c.err = MsgPersonaFailed
		c.logger.Warn("persona request failed", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("generate persona: %w", err)
	}

	generated := resp.Persona
	c.persona = &generated
	c.messages = []chat.ChatMessage{c.message(chat.RoleAssistant, Opener(generated.Name, topic))}
	c.phase = PhaseChat
	c.logger.Info("conversation started", zap.String("topic", topic), zap.String("persona", generated.Name))
	return nil
}

// SendMessage appends text as a user turn, sends the whole transcript and
// appends the persona's reply. On failure the user's turn is kept and
// InlineError reports MsgReplyFailed so the user can resend.
func (c *Conversation) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.phase != PhaseChat {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	if c.persona == nil {
		c.mu.Unlock()
		return ErrNoPersona
	}
	c.messages = append(c.messages, c.message(chat.RoleUser, text))
	req := dialogue.ChatRequest{
		Type:       dialogue.TypeChat,
		Persona:    c.persona,
		Messages:   chat.WireAll(c.messages),
		Topic:      c.topic,
		UserStance: c.userStance,
	}
	c.loadingReply = true
	c.err = ""
	epoch := c.epoch
	c.mu.Unlock()

	var resp dialogue.ChatResponse
	err := c.transport.Send(ctx, req, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrWrongPhase
	}
	c.loadingReply = false

	if err != nil {
		c.err = MsgReplyFailed
		c.logger.Warn("chat request failed", zap.Int("turns", len(req.Messages)), zap.Error(err))
		return fmt.Errorf("chat: %w", err)
	}

	c.messages = append(c.messages, c.message(chat.RoleAssistant, resp.Reply))
	return nil
}

// EndConversation moves chat → end and requests reflection questions. It
// returns nil when there is nothing to reflect on, and swallows failures:
// the end screen renders without questions.
func (c *Conversation) EndConversation(ctx context.Context) []string {
	c.mu.Lock()
	if c.phase != PhaseChat {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseEnd
	if c.persona == nil || len(c.messages) < 2 {
		c.mu.Unlock()
		return nil
	}
	req := dialogue.ReflectionRequest{
		Type:     dialogue.TypeReflection,
		Persona:  c.persona,
		Messages: chat.WireAll(c.messages),
		Topic:    c.topic,
	}
	epoch := c.epoch
	c.mu.Unlock()

	var resp dialogue.ReflectionResponse
	if err := c.transport.Send(ctx, req, &resp); err != nil {
		c.logger.Warn("reflection request failed", zap.Error(err))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.reflection = append([]string(nil), resp.Questions...)
	return append([]string(nil), resp.Questions...)
}

// Reset returns to topic selection and clears everything. Replies to calls
// still in flight are discarded.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.phase = PhaseSelect
	c.persona = nil
	c.messages = nil
	c.topic = ""
	c.userStance = ""
	c.loadingPersona = false
	c.loadingReply = false
	c.reflection = nil
	c.err = ""
}

// DismissError clears the inline error.
func (c *Conversation) DismissError() {
	c.mu.Lock()
	c.err = ""
	c.mu.Unlock()
}

func (c *Conversation) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Persona returns a copy of the current persona, or nil before one is generated.
func (c *Conversation) Persona() *persona.Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.persona == nil {
		return nil
	}
	p := *c.persona
	p.CoreBeliefs = append([]string(nil), c.persona.CoreBeliefs...)
	return &p
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []chat.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.ChatMessage(nil), c.messages...)
}

func (c *Conversation) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

func (c *Conversation) UserStance() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userStance
}

func (c *Conversation) LoadingPersona() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadingPersona
}

func (c *Conversation) LoadingReply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadingReply
}

// ReflectionQuestions returns the questions from the last EndConversation.
func (c *Conversation) ReflectionQuestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reflection...)
}

// InlineError returns the dismissible error string, empty when there is none.
func (c *Conversation) InlineError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conversation) busy() bool {
	return c.loadingPersona || c.loadingReply
}

func (c *Conversation) message(role chat.Role, content string) chat.ChatMessage {
	return chat.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

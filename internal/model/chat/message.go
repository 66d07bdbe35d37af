package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript turn as it travels over the wire.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is a transcript entry held by the client. Ordering is the slice order.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Wire strips client-only fields.
func (m ChatMessage) Wire() Message {
	return Message{Role: m.Role, Content: m.Content}
}

// WireAll converts a transcript for sending.
func WireAll(messages []ChatMessage) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Wire())
	}
	return out
}

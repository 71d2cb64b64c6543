package chat

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. While a bot reply is still being
// assembled Provisional is true and Content grows monotonically; once the
// turn completes the message is finalized and never mutated again.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           Role   `json:"role"`
	BotID          string `json:"bot_id,omitempty"`
	Content        string `json:"content"`
	// CreatedAt is a millisecond epoch timestamp assigned once, at
	// first-fragment arrival. It is never revised afterwards.
	CreatedAt   int64 `json:"created_at"`
	Provisional bool  `json:"provisional,omitempty"`
}

package domain

// Role is the speaker of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn sent to a JSON-producing language model.
type Message struct {
	Role    Role
	Content string
}

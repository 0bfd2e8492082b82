package chat

// Role tags a conversation entry with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the shared conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

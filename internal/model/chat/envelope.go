package chat

import "time"

const (
	DefaultUserID      = "user"
	DefaultMessageType = "chat"

	DefaultSender       = "agent"
	MessageTypeResponse = "response"
	MessageTypeClear    = "clear"
)

// ChatMessage is the inbound envelope a client sends over /ws/chat.
type ChatMessage struct {
	SessionID   string  `json:"session_id"`
	Message     string  `json:"message"`
	UserID      string  `json:"user_id"`
	Timestamp   *string `json:"timestamp"`
	MessageType string  `json:"message_type"`
}

// ChatResponse is the outbound envelope, one per inbound frame.
type ChatResponse struct {
	SessionID   string  `json:"session_id"`
	Message     string  `json:"message"`
	Sender      string  `json:"sender"`
	Timestamp   string  `json:"timestamp"`
	MessageType string  `json:"message_type"`
	Success     bool    `json:"success"`
	Error       *string `json:"error"`
}

// NewResponse builds a successful reply stamped with the current server time.
func NewResponse(sessionID, message string) ChatResponse {
	return ChatResponse{
		SessionID:   sessionID,
		Message:     message,
		Sender:      DefaultSender,
		Timestamp:   Now(),
		MessageType: MessageTypeResponse,
		Success:     true,
	}
}

// NewErrorResponse builds a failed reply carrying the error description.
func NewErrorResponse(sessionID, message string, err error) ChatResponse {
	resp := NewResponse(sessionID, message)
	resp.Success = false
	if err != nil {
		desc := err.Error()
		resp.Error = &desc
	}
	return resp
}

// Now formats the current local time as ISO-8601 with microseconds.
func Now() string {
	return time.Now().Format("2006-01-02T15:04:05.000000")
}

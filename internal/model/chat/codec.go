package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	// FrameChat is a structured message routed to the agent.
	FrameChat FrameKind = iota
	// FrameClear is a structured clear command.
	FrameClear
	// FrameRawText is a frame that is not JSON at all.
	FrameRawText
	// FrameInvalid is valid JSON that does not match the ChatMessage schema.
	FrameInvalid
)

func (k FrameKind) String() string {
	switch k {
	case FrameChat:
		return "chat"
	case FrameClear:
		return "clear"
	case FrameRawText:
		return "raw"
	case FrameInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ClearCommand is the textual form of the clear command.
const ClearCommand = "/clear"

// Frame is the result of decoding one inbound socket frame. Message is only
// populated for structured frames and Err only for FrameInvalid. Text always
// carries what should be sent to the agent.
type Frame struct {
	Kind    FrameKind
	Message *ChatMessage
	Text    string
	Err     error
}

// Decode parses a raw frame as a ChatMessage. Frames that are not JSON come
// back as FrameRawText with the whole frame as text; JSON that does not fit
// the schema comes back as FrameInvalid.
func Decode(raw string) Frame {
	if !json.Valid([]byte(raw)) {
		return Frame{Kind: FrameRawText, Text: raw}
	}

	msg, err := decodeChatMessage([]byte(raw))
	if err != nil {
		return Frame{Kind: FrameInvalid, Text: raw, Err: err}
	}

	if msg.MessageType == MessageTypeClear || IsClearText(msg.Message) {
		return Frame{Kind: FrameClear, Message: msg, Text: msg.Message}
	}
	return Frame{Kind: FrameChat, Message: msg, Text: msg.Message}
}

// IsClearText reports whether text is the clear command, ignoring case and
// surrounding whitespace.
func IsClearText(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == ClearCommand
}

var requiredFields = []string{"session_id", "message"}

func decodeChatMessage(data []byte) (*ChatMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("chat message must be a JSON object: %w", err)
	}
	for _, name := range requiredFields {
		value, ok := fields[name]
		if !ok || string(value) == "null" {
			return nil, fmt.Errorf("chat message field %q is required", name)
		}
	}

	msg := ChatMessage{
		UserID:      DefaultUserID,
		MessageType: DefaultMessageType,
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid chat message: %w", err)
	}
	return &msg, nil
}

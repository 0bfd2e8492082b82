package chat

import (
	"sync"

	"github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
)

// Service holds the single conversation history shared by every connection.
//
// Each operation is atomic on its own, but nothing serializes a whole agent
// turn: two sessions chatting at once interleave their entries into the same
// transcript. Clear affects every session.
type Service struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewService bootstraps an empty in-memory conversation.
func NewService() *Service {
	return &Service{
		messages: make([]chat.Message, 0, 16),
	}
}

// Append adds one entry to the end of the history.
func (s *Service) Append(role chat.Role, content string) {
	s.mu.Lock()
	s.messages = append(s.messages, chat.Message{Role: role, Content: content})
	s.mu.Unlock()
}

// Clear truncates the history to empty.
func (s *Service) Clear() {
	s.mu.Lock()
	s.messages = make([]chat.Message, 0, 16)
	s.mu.Unlock()
}

// Snapshot returns a copy of the full ordered history.
func (s *Service) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len reports the number of stored entries.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

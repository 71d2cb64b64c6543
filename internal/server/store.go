package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store keeps the development server's conversations in memory.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

// NewStore bootstraps an empty in-memory store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

// CreateConversation provisions a conversation for the given user.
func (s *Store) CreateConversation(userID string) chat.Conversation {
	now := time.Now().UnixMilli()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conv
}

// AppendMessage stores a message, assigning id and timestamp when absent.
func (s *Store) AppendMessage(message chat.Message) (chat.Message, error) {
	if message.ConversationID == "" {
		return chat.Message{}, ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[message.ConversationID]
	if !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt == 0 {
		message.CreatedAt = time.Now().UnixMilli()
	}

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	conv.UpdatedAt = message.CreatedAt
	s.conversations[message.ConversationID] = conv
	return message, nil
}

// ListMessages returns a copy of the conversation's messages.
func (s *Store) ListMessages(conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Package chatlog records the messages exchanged in each chat.
package chatlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

// Log appends to and reads back per-chat message history.
type Log interface {
	Append(ctx context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error)
	List(ctx context.Context, chatID string) ([]models.ChatMessage, error)
}

// Prepare validates msg and fills in a missing id and timestamp.
func Prepare(chatID string, msg models.ChatMessage, now time.Time) (models.ChatMessage, error) {
	if chatID == "" {
		return models.ChatMessage{}, apperr.BadRequest("chat id is required")
	}
	switch msg.Role {
	case models.RoleUser, models.RoleAssistant, models.RoleSystem:
	default:
		return models.ChatMessage{}, apperr.BadRequest("unknown message role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now.UTC()
	}
	return msg, nil
}

var _ Log = (*Memory)(nil)

// Memory keeps chat logs for the life of the process.
type Memory struct {
	mu    sync.RWMutex
	chats map[string][]models.ChatMessage
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{chats: make(map[string][]models.ChatMessage), now: time.Now}
}

func (m *Memory) Append(_ context.Context, chatID string, msg models.ChatMessage) (models.ChatMessage, error) {
	msg, err := Prepare(chatID, msg, m.now())
	if err != nil {
		return models.ChatMessage{}, err
	}
	m.mu.Lock()
	m.chats[chatID] = append(m.chats[chatID], msg)
	m.mu.Unlock()
	return msg, nil
}

// List returns the messages in append order. Unknown chats yield an empty slice.
func (m *Memory) List(_ context.Context, chatID string) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ChatMessage, len(m.chats[chatID]))
	copy(out, m.chats[chatID])
	return out, nil
}

package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/soumyapothuganti123-del/image-insight-ai/internal/models"
)

// Memory implements the Store interface with an in-process transcript. The conversation lives for
// the lifetime of the server and is deliberately not persisted anywhere.
//
// The transcript is append-only with two exceptions, both restricted to the trailing entry:
// content replacement while an assistant response is being streamed into it, and removal when a
// stream fails and its placeholder has to be rolled back.
type Memory struct {
	mu       sync.RWMutex
	seq      uint64
	messages []models.Message
}

// NewMemory creates an empty transcript store.
func NewMemory() *Memory {
	return &Memory{}
}

// Messages returns a snapshot of the transcript in insertion order.
func (m *Memory) Messages(context.Context) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := make([]models.Message, len(m.messages))
	copy(messages, m.messages)
	return messages, nil
}

// AddMessage appends a message to the transcript. It generates a unique ID for the message by
// combining a sequence number with the message's original ID, and returns the new ID.
func (m *Memory) AddMessage(_ context.Context, message models.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	message.ID = fmt.Sprintf("%d-%s", m.seq, message.ID)
	m.messages = append(m.messages, message)
	return message.ID, nil
}

// SetMessageContent replaces the content of the message with the given ID. Streaming updates may
// only target the last transcript entry, and only while that entry's role is assistant; anything
// else is a programming error and is rejected.
func (m *Memory) SetMessageContent(_ context.Context, messageID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, err := m.last(messageID)
	if err != nil {
		return err
	}
	if last.Role != models.RoleAssistant {
		return fmt.Errorf("message %s is not an assistant message", messageID)
	}
	last.Content = content
	return nil
}

// RemoveMessage drops the message with the given ID from the transcript. Only the last entry may
// be removed; this is the rollback path for a failed stream's placeholder.
func (m *Memory) RemoveMessage(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.last(messageID); err != nil {
		return err
	}
	m.messages = m.messages[:len(m.messages)-1]
	return nil
}

func (m *Memory) last(messageID string) (*models.Message, error) {
	if len(m.messages) == 0 {
		return nil, fmt.Errorf("transcript is empty")
	}
	last := &m.messages[len(m.messages)-1]
	if last.ID != messageID {
		return nil, fmt.Errorf("message %s is not the last transcript entry", messageID)
	}
	return last, nil
}

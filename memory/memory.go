// Package memory stores per-session conversation history consulted and
// updated by the chat engine.
package memory

import (
	"context"
	"sync"

	"github.com/gamma-omg/contextqa/llm"
)

// Store keeps an ordered message sequence per session. Sessions are created
// implicitly on first append and grow monotonically; eviction is not this
// package's concern.
type Store interface {
	History(ctx context.Context, session string) ([]llm.Message, error)
	Append(ctx context.Context, session string, messages ...llm.Message) error
}

// InProcessStore is a map-backed Store used when no database is configured
// and in tests.
type InProcessStore struct {
	mu       sync.RWMutex
	sessions map[string][]llm.Message
}

var _ Store = (*InProcessStore)(nil)

func NewInProcessStore() *InProcessStore {
	return &InProcessStore{sessions: make(map[string][]llm.Message)}
}

func (s *InProcessStore) History(ctx context.Context, session string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[session]
	out := make([]llm.Message, len(history))
	copy(out, history)

	return out, nil
}

func (s *InProcessStore) Append(ctx context.Context, session string, messages ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session] = append(s.sessions[session], messages...)

	return nil
}

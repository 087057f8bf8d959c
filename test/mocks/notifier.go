package mocks

import (
	"context"
	"sync"
)

// MockNotifier records announcements instead of posting webhooks
type MockNotifier struct {
	AnnounceFunc func(ctx context.Context, text string) error

	mu       sync.Mutex
	messages []string
}

func (m *MockNotifier) Announce(ctx context.Context, text string) error {
	m.mu.Lock()
	m.messages = append(m.messages, text)
	m.mu.Unlock()

	if m.AnnounceFunc != nil {
		return m.AnnounceFunc(ctx, text)
	}
	return nil
}

// Messages returns every announcement recorded so far
func (m *MockNotifier) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}

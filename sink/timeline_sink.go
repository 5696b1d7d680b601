package sink

import (
	"context"
	"sync"

	"chat-core/domain"
	"chat-core/domain/event"
)

// Timeline accumulates the messages seen on a channel, a simple local
// projection used by tests and diagnostics.
type Timeline struct {
	mu       sync.Mutex
	Messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) Consume(_ context.Context, e event.Event) error {
	if sent, ok := e.(event.MessageSent); ok {
		t.mu.Lock()
		t.Messages = append(t.Messages, sent.Message)
		t.mu.Unlock()
	}
	return nil
}

func (t *Timeline) Close() {}

func (t *Timeline) Snapshot() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Message(nil), t.Messages...)
}

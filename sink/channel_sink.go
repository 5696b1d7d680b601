package sink

import (
	"context"
	"fmt"
	"sync"

	"chat-core/domain/event"
)

// ChannelSink buffers events for one live connection. Consume never
// blocks the publisher: when the buffer is full the event is dropped and
// an error is returned for the dispatcher to log. The owning connection
// drains Events and watches Done for forced closure.
type ChannelSink struct {
	Events chan event.Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{
		Events: make(chan event.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the dispatcher's fan-out loop.
func (s *ChannelSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-s.done:
		return fmt.Errorf("sink closed")
	default:
	}
	select {
	case s.Events <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("sink closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("sink buffer full, event %s dropped", e.Name())
	}
}

// Done is closed when the sink is force-closed, for example after a
// membership revocation evicted this subscriber.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}

func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

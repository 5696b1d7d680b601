//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"reflect"
)

// EventSink receives fanned-out events for one subscriber. Consume must
// never block the publisher: implementations buffer and drop rather than
// stall the write path.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
	// Close releases the sink. The owning connection observes the close and
	// tears its subscriptions down; closing twice is a no-op.
	Close()
}

// Publisher fans an event out to the current subscribers of its channel.
// Delivery is at-most-once and best-effort; failures never surface here.
type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

// UserDirectory is the identity provider's lookup surface. The core trusts
// the identities it returns and never re-derives them.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (domain.User, error)
}

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision without manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

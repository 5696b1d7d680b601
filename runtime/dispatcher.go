package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-core/contract"
	"chat-core/domain/event"
)

// Subscription attaches one connection's sink to a channel.
type Subscription struct {
	ConnectionID string
	UserID       string
	Sink         contract.EventSink
}

// Dispatcher fans domain events out to the current subscribers of their
// channel.
//
// Delivery is at-most-once and best-effort per subscriber: a sink that is
// gone or full simply misses the event. There are no retries and no
// durable queue here; durability of the underlying fact is the store's
// job. Sink failures are swallowed at this boundary and never surface to
// the writer.
//
// Dispatcher is safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]map[string]Subscription // channel -> connection -> subscription

	log *slog.Logger

	// Telemetry receives a copy of every published event, dropped when
	// full. The telemetry worker drains it off the publish path.
	Telemetry chan event.Event
}

func NewDispatcher(log *slog.Logger, telemetryBuffer int) *Dispatcher {
	return &Dispatcher{
		channels:  make(map[string]map[string]Subscription),
		log:       log,
		Telemetry: make(chan event.Event, telemetryBuffer),
	}
}

func (d *Dispatcher) Subscribe(channel string, sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs, ok := d.channels[channel]
	if !ok {
		subs = make(map[string]Subscription)
		d.channels[channel] = subs
	}
	subs[sub.ConnectionID] = sub
}

func (d *Dispatcher) Unsubscribe(channel, connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(channel, connectionID)
}

// UnsubscribeAll detaches a connection from every channel, the disconnect
// path. The connection's sink is not closed here; the connection owns it.
func (d *Dispatcher) UnsubscribeAll(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for channel := range d.channels {
		d.removeLocked(channel, connectionID)
	}
}

func (d *Dispatcher) removeLocked(channel, connectionID string) {
	subs, ok := d.channels[channel]
	if !ok {
		return
	}
	delete(subs, connectionID)
	if len(subs) == 0 {
		delete(d.channels, channel)
	}
}

// Subscribers reports the current subscriber count of a channel.
func (d *Dispatcher) Subscribers(channel string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels[channel])
}

// Publish fans the event out to the channel's subscribers. The subscriber
// set is snapshotted under the read lock and delivery happens from the
// snapshot, so no lock is held across sink I/O and a slow subscriber
// cannot delay the publisher.
//
// A MembershipChanged event with removals additionally force-drops the
// removed members' subscriptions on that channel: their sinks are closed,
// which tears the live presence connections down within this dispatch
// cycle and closes the gap between revoked membership and live streams.
func (d *Dispatcher) Publish(ctx context.Context, e event.Event) {
	channel := e.Channel()
	if channel == "" {
		return
	}

	d.mu.RLock()
	snapshot := make([]Subscription, 0, len(d.channels[channel]))
	for _, sub := range d.channels[channel] {
		snapshot = append(snapshot, sub)
	}
	d.mu.RUnlock()

	for _, sub := range snapshot {
		if err := sub.Sink.Consume(ctx, e); err != nil {
			d.log.Debug("subscriber missed event",
				"channel", channel,
				"event", e.Name(),
				"connection_id", sub.ConnectionID,
				"error", err)
		}
	}

	select {
	case d.Telemetry <- e:
	default:
		d.log.Debug("telemetry event lost", "event", e.Name())
	}

	if mc, ok := e.(event.MembershipChanged); ok && len(mc.Removed) > 0 {
		d.evict(channel, mc.Removed)
	}
}

// evict drops the given users' subscriptions from a channel and closes
// their sinks. Closing happens after the lock is released.
func (d *Dispatcher) evict(channel string, userIDs []string) {
	removed := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		removed[userID] = struct{}{}
	}

	var evicted []Subscription
	d.mu.Lock()
	for connectionID, sub := range d.channels[channel] {
		if _, gone := removed[sub.UserID]; gone {
			evicted = append(evicted, sub)
			d.removeLocked(channel, connectionID)
		}
	}
	d.mu.Unlock()

	for _, sub := range evicted {
		d.log.Info("evicting revoked subscriber",
			"channel", channel,
			"connection_id", sub.ConnectionID,
			"user_id", sub.UserID)
		sub.Sink.Close()
	}
}

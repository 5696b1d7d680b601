package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/runtime"
	"chat-core/services"
	"chat-core/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
)

// connection couples one websocket to its sink and live subscriptions.
// Frames are handled on the read pump only, so the subscription map needs
// no lock; the write pump owns all writes to the socket.
type connection struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	sink     *sink.ChannelSink
	gateway  *Gateway

	// channel name -> authorization outcome, to undo presence on teardown
	subscriptions map[string]auth.Decision

	outbound chan ServerFrame
}

func newConnection(gateway *Gateway, wsConn *websocket.Conn, identity auth.Identity) *connection {
	return &connection{
		id:            uuid.NewString(),
		identity:      identity,
		conn:          wsConn,
		sink:          sink.NewChannelSink(gateway.sinkBuffer),
		gateway:       gateway,
		subscriptions: make(map[string]auth.Decision),
		outbound:      make(chan ServerFrame, 16),
	}
}

// readPump parses client frames until the socket dies, then tears all of
// the connection's subscriptions down. Disconnection is the only cleanup
// path; there is no manual presence deletion.
func (c *connection) readPump(ctx context.Context) {
	defer c.teardown(ctx)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gateway.log.Debug("connection read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		var frame ClientFrame
		if err = json.Unmarshal(raw, &frame); err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		c.handleFrame(ctx, frame)
	}
}

// writePump serializes everything leaving the connection: fanned-out
// events from the sink, direct replies, and pings. It exits when the sink
// is force-closed (eviction) or the outbound path fails, closing the
// socket so the read pump unwinds too.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.sink.Events:
			if !c.write(encodeEvent(evt)) {
				return
			}
		case frame := <-c.outbound:
			if !c.write(frame) {
				return
			}
		case <-c.sink.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscription revoked"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(frame ServerFrame) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame) == nil
}

func (c *connection) reply(frame ServerFrame) {
	select {
	case c.outbound <- frame:
	default:
		c.gateway.log.Debug("outbound buffer full, reply dropped", "connection_id", c.id)
	}
}

func (c *connection) handleFrame(ctx context.Context, frame ClientFrame) {
	switch frame.Action {
	case ActionSubscribe:
		c.subscribe(ctx, frame.Channel)
	case ActionUnsubscribe:
		c.unsubscribe(ctx, frame.Channel)
	case ActionMessage:
		c.sendMessage(ctx, frame)
	case ActionTyping:
		c.typing(ctx, frame)
	case ActionMarkRead:
		c.markRead(ctx, frame)
	default:
		c.reply(ServerFrame{Type: FrameError, Error: fmt.Sprintf("unknown action %q", frame.Action)})
	}
}

// subscribe re-evaluates authorization on every attempt; nothing is
// cached across membership changes. On a presence channel the join order
// matters: the delta is published before this connection is attached, so
// existing subscribers see the join and the joiner only gets the snapshot.
func (c *connection) subscribe(ctx context.Context, channel string) {
	decision, err := c.gateway.authorizer.Authorize(c.identity, channel)
	if err != nil {
		c.reply(ServerFrame{Type: FrameError, Channel: channel, Error: err.Error()})
		return
	}

	ack := ServerFrame{Type: FrameSubscribed, Channel: channel}
	if decision.Kind == auth.ChannelPresence {
		snapshot, first := c.gateway.presence.Join(domain.PresenceEntry{
			RoomID:       decision.RoomID,
			UserID:       c.identity.User.ID,
			DisplayName:  c.identity.User.DisplayName,
			ConnectionID: c.id,
		})
		if first {
			c.gateway.dispatcher.Publish(ctx, event.PresenceDelta{
				RoomID: decision.RoomID,
				Kind:   event.MemberJoined,
				User:   c.identity.User,
			})
		}
		present := make([]UserPayload, 0, len(snapshot))
		for _, user := range snapshot {
			present = append(present, toUserPayload(user))
		}
		ack.Payload = SnapshotPayload{Present: present}
	}

	c.gateway.dispatcher.Subscribe(channel, runtime.Subscription{
		ConnectionID: c.id,
		UserID:       c.identity.User.ID,
		Sink:         c.sink,
	})
	c.subscriptions[channel] = decision
	c.gateway.monitor.Subscribed()
	c.reply(ack)
}

func (c *connection) unsubscribe(ctx context.Context, channel string) {
	decision, ok := c.subscriptions[channel]
	if !ok {
		return
	}
	delete(c.subscriptions, channel)
	c.gateway.dispatcher.Unsubscribe(channel, c.id)
	c.gateway.monitor.Unsubscribed()
	c.releasePresence(ctx, decision)
	c.reply(ServerFrame{Type: FrameUnsubscribed, Channel: channel})
}

func (c *connection) releasePresence(ctx context.Context, decision auth.Decision) {
	if decision.Kind != auth.ChannelPresence {
		return
	}
	user, last := c.gateway.presence.Leave(decision.RoomID, c.id)
	if last {
		c.gateway.dispatcher.Publish(ctx, event.PresenceDelta{
			RoomID: decision.RoomID,
			Kind:   event.MemberLeft,
			User:   user,
		})
	}
}

func (c *connection) sendMessage(ctx context.Context, frame ClientFrame) {
	message, err := c.gateway.messages.Send(ctx, services.SendCommand{
		SenderID: c.identity.User.ID,
		Recipient: domain.Recipient{
			Kind: domain.RecipientKind(frame.RecipientKind),
			ID:   frame.RecipientID,
		},
		Content: frame.Content,
	})
	if err != nil {
		c.reply(ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}
	c.reply(ServerFrame{Type: FrameSent, Payload: toMessagePayload(message)})
}

// typing is fire-and-forget: no persistence, no acknowledgment.
func (c *connection) typing(ctx context.Context, frame ClientFrame) {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return
	}
	c.gateway.dispatcher.Publish(ctx, event.TypingChanged{
		RoomID:   roomID,
		UserID:   c.identity.User.ID,
		IsTyping: frame.IsTyping,
	})
}

func (c *connection) markRead(ctx context.Context, frame ClientFrame) {
	messageID, err := uuid.Parse(frame.MessageID)
	if err != nil {
		c.reply(ServerFrame{Type: FrameError, Error: "malformed message id"})
		return
	}
	if err = c.gateway.messages.MarkRead(ctx, c.identity.User.ID, messageID); err != nil {
		c.reply(ServerFrame{Type: FrameError, Error: err.Error()})
	}
}

// teardown runs once, from the read pump's defer. Presence exits before
// the dispatcher detach so the leave delta reaches remaining subscribers
// but not this connection.
func (c *connection) teardown(ctx context.Context) {
	for channel, decision := range c.subscriptions {
		c.gateway.dispatcher.Unsubscribe(channel, c.id)
		c.gateway.monitor.Unsubscribed()
		c.releasePresence(ctx, decision)
	}
	c.subscriptions = make(map[string]auth.Decision)
	c.gateway.dispatcher.UnsubscribeAll(c.id)
	c.sink.Close()
	c.gateway.monitor.ConnectionClosed()
	_ = c.conn.Close()
	c.gateway.log.Info("connection closed", "connection_id", c.id, "user_id", c.identity.User.ID)
}

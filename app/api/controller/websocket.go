package controller

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quorumdao/govx/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string `json:"topic"`  // Event topic, or "*" for all topics
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string `json:"type"` // "event", "subscribed", "unsubscribed", "error"
	Payload any    `json:"payload"`
}

// topicSubscriptions tracks which event topics a client wants to receive.
type topicSubscriptions struct {
	mu     sync.RWMutex
	topics map[string]bool
}

func newTopicSubscriptions() *topicSubscriptions {
	return &topicSubscriptions{topics: make(map[string]bool)}
}

func (ts *topicSubscriptions) Subscribe(topic string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.topics[topic] = true
}

func (ts *topicSubscriptions) Unsubscribe(topic string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.topics, topic)
}

// IsSubscribed reports whether the topic is wanted. Wildcard (*) matches all.
func (ts *topicSubscriptions) IsSubscribed(topic string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.topics["*"] {
		return true
	}
	return ts.topics[topic]
}

// HandleWebSocket upgrades the connection and streams mutation events.
//
// Protocol:
// Client sends: {"action": "subscribe", "topic": "proposal.voted"}
// Client sends: {"action": "subscribe", "topic": "*"}
// Client sends: {"action": "unsubscribe", "topic": "proposal.voted"}
//
// Server sends:
// - {"type": "event", "payload": {"topic": ..., "at": ..., "payload": {...}}}
// - {"type": "subscribed", "payload": {"topic": "..."}}
// - {"type": "unsubscribed", "payload": {"topic": "..."}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("failed to close websocket connection", zap.Error(err))
		}
	}()

	c.App.Logger.Info("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newTopicSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.forwardEvents(ctx, cancel, send, subs)
	}()
	go func() {
		defer wg.Done()
		c.writeMessages(conn, send)
	}()

	// Blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	close(send)
	wg.Wait()

	c.App.Logger.Info("websocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// forwardEvents subscribes to the redis event channels and forwards events
// matching the client's topic subscriptions. Exits when the redis channel
// closes or ctx is cancelled; the reader detects the closed connection.
func (c *Controller) forwardEvents(ctx context.Context, cancel context.CancelFunc, send chan<- ServerMessage, subs *topicSubscriptions) {
	defer cancel()

	pubsub := c.App.RedisClient.PSubscribe(ctx, events.ChannelPrefix+"*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("error closing redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		c.App.Logger.Warn("failed to confirm redis subscription", zap.Error(err))
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, events.ChannelPrefix)
			if !subs.IsSubscribed(topic) {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.App.Logger.Error("failed to parse event payload",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}
			select {
			case send <- ServerMessage{Type: "event", Payload: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				c.App.Logger.Error("failed to write websocket message", zap.Error(err))
				return
			}
		case <-ticker.C:
			// Keep-alive; the pong handler in the reader resets the deadline.
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *topicSubscriptions, send chan<- ServerMessage) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("websocket read error", zap.Error(err))
				}
				cancel()
				return
			}
			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				c.App.Logger.Error("failed to reset read deadline", zap.Error(err))
				return
			}

			switch msg.Action {
			case "subscribe":
				if msg.Topic == "" {
					send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "topic is required"}}
					continue
				}
				subs.Subscribe(msg.Topic)
				send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"topic": msg.Topic}}

			case "unsubscribe":
				if msg.Topic == "" {
					send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "topic is required"}}
					continue
				}
				subs.Unsubscribe(msg.Topic)
				send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"topic": msg.Topic}}

			default:
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
			}
		}
	}
}

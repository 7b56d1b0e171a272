package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"voice_survey_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
	eventChannel    = "call_events"
)

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CallEvent is the structured failure/progress record surfaced to the
// observability side: call id, state at the time, error kind.
type CallEvent struct {
	SessionID string    `json:"sessionId"`
	SurveyID  uint      `json:"surveyId"`
	ContactID uint      `json:"contactId"`
	State     string    `json:"state"`
	Status    string    `json:"status,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub broadcasts call lifecycle events to websocket subscribers.
// Events also travel through Redis pub/sub so every instance sees calls
// handled by its peers.
type EventHub struct {
	redis *redis.Client

	mu      sync.RWMutex
	clients map[*eventClient]bool

	register   chan *eventClient
	unregister chan *eventClient
	local      chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEventHub(rdb *redis.Client) *EventHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventHub{
		redis:      rdb,
		clients:    make(map[*eventClient]bool),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		local:      make(chan []byte, 64),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// PublishCallEvent fans the event out to local subscribers and, when Redis
// is configured, to peer instances.
func (h *EventHub) PublishCallEvent(event CallEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if h.redis != nil {
		if err := h.redis.Publish(h.ctx, eventChannel, payload).Err(); err != nil {
			logger.Log.Debug("event publish failed, delivering locally", zap.Error(err))
			h.deliverLocal(payload)
		}
		return
	}
	h.deliverLocal(payload)
}

func (h *EventHub) deliverLocal(payload []byte) {
	select {
	case h.local <- payload:
	default:
	}
}

func (h *EventHub) Run() {
	if h.redis != nil {
		pubsub := h.redis.Subscribe(h.ctx, eventChannel)
		defer pubsub.Close()
		go func() {
			ch := pubsub.Channel()
			for msg := range ch {
				h.broadcast([]byte(msg.Payload))
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case payload := <-h.local:
			h.broadcast(payload)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *EventHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// registerClient hands the client to the hub loop. It reports false when the
// hub is already stopped, so the caller can close the connection instead of
// blocking on a channel nobody reads anymore.
func (h *EventHub) registerClient(c *eventClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// dropClient must never block after Stop; the hub loop is gone by then and
// Stop has already closed every send channel.
func (h *EventHub) dropClient(c *eventClient) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *EventHub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	logger.Log.Info("Event hub stopped")
}

func (c *eventClient) writePump(hub *EventHub) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *eventClient) readPump(hub *EventHub) {
	defer func() {
		hub.dropClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
		return nil
	})
	// Subscribers are read-only; drain until the peer goes away.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// ServeEvents upgrades the connection and streams call events to it.
func ServeEvents(hub *EventHub, w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client := &eventClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	if !hub.registerClient(client) {
		conn.Close()
		return
	}

	go client.writePump(hub)
	go client.readPump(hub)
}

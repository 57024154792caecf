// Package websocket pushes coordination events to the local UI. Clients
// subscribe to topics and receive events broadcast to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Topics carried by the hub.
const (
	TopicUsers    = "users"
	TopicRooms    = "rooms"
	TopicQueue    = "queue"
	TopicMessages = "messages"
)

// Event is a notification sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	// Retain keeps the event as the topic's current snapshot, replayed to
	// clients that subscribe later.
	Retain bool `json:"-"`
}

// NewEvent marshals data into an event.
func NewEvent(topic, typ string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Topic: topic, Timestamp: time.Now(), Data: raw}, nil
}

// ClientMessage is an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{} // topic -> set of clients
	all      map[*Client]struct{}
	retained map[string][]byte // topic -> last retained event
	log      zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		retained: make(map[string][]byte),
		log:      log.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	topics := client.Topics
	client.Topics = nil
	h.subscribe(client, topics)
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribe(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribe(client, topics)
}

// subscribe replays each new topic's retained snapshot; caller holds the lock.
func (h *Hub) subscribe(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
		if data, ok := h.retained[topic]; ok {
			h.send(client, data)
		}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribe(client, topics)
}

func (h *Hub) unsubscribe(client *Client, topics []string) {
	removeSet := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		removeSet[topic] = struct{}{}
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches a ClientMessage to Subscribe or Unsubscribe.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// send never blocks: a client with a full buffer misses the event.
func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.log.Debug().Str("client_id", client.ID).Msg("client buffer full, event dropped")
	}
}

// Broadcast sends an event to all clients subscribed to topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}

	if event.Retain {
		h.mu.Lock()
		h.retained[topic] = data
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		h.send(client, data)
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.Broadcast(event.Topic, event)
	return nil
}

// Forget drops the retained snapshot of topic, e.g. on logout.
func (h *Hub) Forget(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.retained, topic)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WebSocketHandler upgrades HTTP connections and pumps hub events to them.
type WebSocketHandler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from the given origins; an empty list
// accepts any origin.
func NewWebSocketHandler(hub *Hub, origins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection. ?topics=users,rooms subscribes
// immediately.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var topics []string
	for _, t := range strings.Split(c.QueryParam("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := &Client{
		ID:     uuid.New().String(),
		Topics: topics,
		Send:   make(chan []byte, 256),
	}
	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

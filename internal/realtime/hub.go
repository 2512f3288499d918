package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// ClientMessage is what a websocket client sends to change its topics.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one websocket subscriber.
type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

func NewClient(id string, buffer int) *Client {
	return &Client{ID: id, Send: make(chan []byte, buffer), topics: make(map[string]struct{})}
}

// Hub tracks clients and their channel subscriptions and fans events out
// to them. A slow client drops events rather than blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // channel -> subscribers
	all     map[*Client]struct{}
	logger  *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[c] = struct{}{}
	h.subscribeLocked(c, topics)
}

// Unregister drops all subscriptions of c and closes its Send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.removeLocked(c, topic)
	}
	delete(h.all, c)
	close(c.Send)
}

func (h *Hub) Subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(c, topics)
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.removeLocked(c, topic)
	}
}

func (h *Hub) subscribeLocked(c *Client, topics []string) {
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][c] = struct{}{}
		c.topics[topic] = struct{}{}
	}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	if subs, ok := h.clients[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.clients, topic)
		}
	}
	delete(c.topics, topic)
}

// ProcessMessage applies a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	}
}

// Broadcast delivers ev to the subscribers of channel on this instance.
func (h *Hub) Broadcast(channel string, ev Event) {
	ev.Channel = channel
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Type).Msg("marshal realtime event")
		return
	}
	h.deliver(channel, data)
}

func (h *Hub) deliver(channel string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[channel] {
		select {
		case c.Send <- data:
		default:
			h.logger.Debug().Str("client", c.ID).Str("channel", channel).Msg("client buffer full, dropping event")
		}
	}
}

// Notify implements Notifier for a single instance.
func (h *Hub) Notify(_ context.Context, channel string, ev Event) error {
	h.Broadcast(channel, ev)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Package realtime pushes order-state changes to live subscribers. Channels
// are named after an order id (a customer tracking one order) or a restaurant
// id (a dashboard watching incoming orders). Delivery is best-effort and
// at-most-once; the repository stays the source of truth and a late
// subscriber falls back to a direct fetch.
package realtime

import (
	"sync"
)

// Event kinds published by the order handlers.
const (
	EventNewOrder           = "newOrder"
	EventOrderStatusUpdated = "orderStatusUpdated"
)

// Event is one push message as seen by a subscriber.
type Event struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

// Publisher is the piece of the hub the order handlers depend on.
type Publisher interface {
	Publish(channel, event string, payload interface{})
}

// sendBuffer is the per-client event backlog. A client that falls further
// behind than this starts losing events rather than blocking the publisher.
const sendBuffer = 16

// Client is one connected subscriber. A client may join any number of
// channels; membership lives only as long as the connection.
type Client struct {
	hub  *Hub
	send chan Event
}

// Events returns the client's ordered event stream.
func (c *Client) Events() <-chan Event {
	return c.send
}

// Hub is the process-local channel registry. It is transient: rebuilt from
// live connections, never persisted.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	members  map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		members:  make(map[*Client]map[string]struct{}),
	}
}

// Register creates a new subscriber with no channel memberships.
func (h *Hub) Register() *Client {
	c := &Client{hub: h, send: make(chan Event, sendBuffer)}
	h.mu.Lock()
	h.members[c] = make(map[string]struct{})
	h.mu.Unlock()
	return c
}

// Join subscribes the client to a channel. Joining twice is a no-op.
func (h *Hub) Join(c *Client, channel string) {
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[c]; !ok {
		return
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][c] = struct{}{}
	h.members[c][channel] = struct{}{}
}

// Unregister drops the client from every channel and closes its event
// stream. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	channels, ok := h.members[c]
	if !ok {
		return
	}
	for channel := range channels {
		delete(h.channels[channel], c)
		if len(h.channels[channel]) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(h.members, c)
	close(c.send)
}

// Publish fans the event out to every current subscriber of the channel.
// Sends never block: a subscriber with a full buffer misses the event.
// Within one channel a subscriber that keeps up sees events in publish order.
func (h *Hub) Publish(channel, event string, payload interface{}) {
	e := Event{Event: event, Channel: channel, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- e:
		default:
		}
	}
}

// Subscribers reports the current subscriber count of a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/rs/zerolog"
)

// Subscription is one joined channel on a client.
type Subscription struct {
	Channel string
	Table   string
	Filter  Filter
	// Events restricts delivery; empty means every event.
	Events map[Event]bool
}

// NewSubscription validates a join request.
func NewSubscription(channel, table, filter string, events []Event) (Subscription, error) {
	if channel == "" {
		return Subscription{}, errors.New("channel is required")
	}
	if table == "" {
		return Subscription{}, errors.New("table is required")
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return Subscription{}, err
	}
	sub := Subscription{Channel: channel, Table: table, Filter: f}
	for _, e := range events {
		if e == "*" {
			sub.Events = nil
			break
		}
		if _, err := ParseEvent(string(e)); err != nil {
			return Subscription{}, err
		}
		if sub.Events == nil {
			sub.Events = make(map[Event]bool)
		}
		sub.Events[e] = true
	}
	return sub, nil
}

// Wants reports whether ch should be delivered on this subscription.
func (s Subscription) Wants(ch Change) bool {
	if ch.Table != s.Table {
		return false
	}
	if len(s.Events) > 0 && !s.Events[ch.Event] {
		return false
	}
	return s.Filter.Match(ch.Row())
}

// Client represents a single realtime connection.
type Client struct {
	ID      string
	Session auth.Session

	send     chan []byte
	subs     map[string]Subscription // channel -> subscription
	overflow chan struct{}
	once     sync.Once
}

// NewClient creates a client with a send buffer of size buffer.
func NewClient(id string, s auth.Session, buffer int) *Client {
	return &Client{
		ID:       id,
		Session:  s,
		send:     make(chan []byte, buffer),
		subs:     make(map[string]Subscription),
		overflow: make(chan struct{}),
	}
}

// Send is the client's outbound frame queue. It is closed by Unregister.
func (c *Client) Send() <-chan []byte { return c.send }

// Overflowed is closed once a frame had to be dropped for this client. The
// connection is then torn down so the client reconnects and re-fetches.
func (c *Client) Overflowed() <-chan struct{} { return c.overflow }

func (c *Client) markOverflow() {
	c.once.Do(func() { close(c.overflow) })
}

var (
	ErrAlreadyJoined = errors.New("channel already joined")
	ErrNotJoined     = errors.New("channel not joined")
)

// Hub tracks clients and their channel subscriptions, indexed by table. All
// operations are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	tables  map[string]map[*Client]struct{} // table -> clients with a sub on it
	all     map[*Client]struct{}
	logger  zerolog.Logger
	metrics *Metrics
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger zerolog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		tables:  make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; ok {
		return
	}
	h.all[c] = struct{}{}
	h.metrics.clientDelta(1)
}

// Unregister removes a client and all its subscriptions and closes its send
// queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for _, sub := range c.subs {
		if clients, ok := h.tables[sub.Table]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.tables, sub.Table)
			}
		}
	}
	h.metrics.subscriptionDelta(-float64(len(c.subs)))
	c.subs = nil
	delete(h.all, c)
	close(c.send)
	h.metrics.clientDelta(-1)
}

// Join adds sub to a registered client.
func (h *Hub) Join(c *Client, sub Subscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return errors.New("client not registered")
	}
	if _, ok := c.subs[sub.Channel]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, sub.Channel)
	}
	c.subs[sub.Channel] = sub
	if h.tables[sub.Table] == nil {
		h.tables[sub.Table] = make(map[*Client]struct{})
	}
	h.tables[sub.Table][c] = struct{}{}
	h.metrics.subscriptionDelta(1)
	return nil
}

// Leave removes the named channel from a client.
func (h *Hub) Leave(c *Client, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := c.subs[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, channel)
	}
	delete(c.subs, channel)
	h.untrack(c, sub.Table)
	h.metrics.subscriptionDelta(-1)
	return nil
}

// untrack drops c from the table index when it has no subscription left on
// table. Callers hold h.mu.
func (h *Hub) untrack(c *Client, table string) {
	for _, s := range c.subs {
		if s.Table == table {
			return
		}
	}
	if clients, ok := h.tables[table]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.tables, table)
		}
	}
}

// Broadcast delivers ch on every matching subscription and returns the
// number of frames queued. A client whose buffer is full loses the frame and
// is flagged as overflowed.
func (h *Hub) Broadcast(ch Change) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.tables[ch.Table] {
		for _, sub := range c.subs {
			if !sub.Wants(ch) {
				continue
			}
			data, err := json.Marshal(Message{Type: TypeChange, Channel: sub.Channel, Payload: &ch})
			if err != nil {
				h.logger.Error().Err(err).Str("table", ch.Table).Msg("marshal change frame")
				return delivered
			}
			select {
			case c.send <- data:
				delivered++
				h.metrics.deliveredInc()
			default:
				h.metrics.droppedInc()
				h.logger.Warn().Str("client_id", c.ID).Str("channel", sub.Channel).Msg("send buffer full, dropping client")
				c.markOverflow()
			}
		}
	}
	return delivered
}

// BroadcastResync tells every connected client to re-fetch.
func (h *Hub) BroadcastResync() {
	data, _ := json.Marshal(Message{Type: TypeResync})

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.all {
		select {
		case c.send <- data:
		default:
			c.markOverflow()
		}
	}
}

// HandleNotification decodes a database notification payload and broadcasts
// it. It has the signature expected by db.Listener.Run.
func (h *Hub) HandleNotification(_ context.Context, payload string) {
	ch, err := DecodeChange([]byte(payload))
	if err != nil {
		h.metrics.invalidInc()
		h.logger.Warn().Err(err).Msg("discarding change notification")
		return
	}
	h.Broadcast(ch)
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// SubscriptionCount returns the number of joined channels across clients.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.all {
		n += len(c.subs)
	}
	return n
}

// TableCount returns the number of clients subscribed to table.
func (h *Hub) TableCount(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tables[table])
}

// enqueue queues a control frame for c. It reports false when the buffer is
// full.
func (h *Hub) enqueue(c *Client, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.markOverflow()
		return false
	}
}

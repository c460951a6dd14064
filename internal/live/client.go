// Package live keeps in-memory views of backend tables consistent with the
// realtime change feed: subscribe, fetch a snapshot, merge change events,
// recompute aggregates, and re-fetch after every reconnect.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ehr/wardwatch/internal/platform/realtime"
)

var (
	ErrClientClosed = errors.New("live client closed")
	ErrDisconnected = errors.New("realtime connection lost")
	ErrAckTimeout   = errors.New("timed out waiting for server reply")
	// ErrUnauthorized is returned when the server refuses the access token.
	ErrUnauthorized = errors.New("realtime token rejected")
)

// ServerError is an error frame returned for a request.
type ServerError struct {
	Channel string
	Message string
}

func (e *ServerError) Error() string {
	if e.Channel == "" {
		return "realtime: " + e.Message
	}
	return fmt.Sprintf("realtime %s: %s", e.Channel, e.Message)
}

type ClientConfig struct {
	// URL of the websocket endpoint, e.g. ws://host:8000/realtime/v1/websocket.
	URL   string
	Token string

	HeartbeatInterval time.Duration
	AckTimeout        time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration

	Dialer *gorillawebsocket.Dialer
	Logger zerolog.Logger
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = gorillawebsocket.DefaultDialer
	}
	return c
}

// connection is one live websocket plus the bookkeeping that dies with it.
type connection struct {
	ws      *gorillawebsocket.Conn
	writeMu sync.Mutex
	lost    chan struct{}
	once    sync.Once
	err     error
}

func (cn *connection) write(msg realtime.Message, timeout time.Duration) error {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	_ = cn.ws.SetWriteDeadline(time.Now().Add(timeout))
	return cn.ws.WriteJSON(msg)
}

func (cn *connection) fail(err error) {
	cn.once.Do(func() {
		cn.err = err
		close(cn.lost)
		cn.ws.Close()
	})
}

// Client multiplexes channels over one websocket connection and keeps it
// alive: heartbeats while connected, exponential-backoff reconnects when the
// connection drops, re-joins of every open channel afterwards.
type Client struct {
	cfg    ClientConfig
	logger zerolog.Logger
	ref    atomic.Uint64

	mu      sync.Mutex
	conn    *connection
	subs    map[string]*Subscription
	pending map[string]chan realtime.Message

	resync chan struct{}
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the realtime endpoint. The first connection attempt must
// succeed; later losses are recovered in the background until Close.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		subs:    make(map[string]*Subscription),
		pending: make(map[string]chan realtime.Message),
		resync:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.attach(conn)
	go c.supervise(conn)
	return c, nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("access_token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) (*connection, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	ws, resp, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("realtime dial: %w: %v", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("realtime dial: %w", err)
	}
	return &connection{ws: ws, lost: make(chan struct{})}, nil
}

// attach makes conn current and starts reading from it.
func (c *Client) attach(conn *connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	deadline := 2*c.cfg.HeartbeatInterval + c.cfg.AckTimeout
	_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))
	conn.ws.SetPingHandler(func(data string) error {
		_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))
		return conn.ws.WriteControl(gorillawebsocket.PongMessage, []byte(data), time.Now().Add(c.cfg.AckTimeout))
	})
	go c.read(conn, deadline)
}

func (c *Client) read(conn *connection, deadline time.Duration) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			conn.fail(err)
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))

		var msg realtime.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("ignoring malformed realtime frame")
			continue
		}

		switch msg.Type {
		case realtime.TypeChange:
			c.mu.Lock()
			sub := c.subs[msg.Channel]
			c.mu.Unlock()
			if sub != nil && msg.Payload != nil {
				sub.deliver(*msg.Payload)
			}
		case realtime.TypeResync:
			select {
			case c.resync <- struct{}{}:
			default:
			}
		case realtime.TypeAck, realtime.TypeError:
			c.mu.Lock()
			reply, ok := c.pending[msg.Ref]
			delete(c.pending, msg.Ref)
			c.mu.Unlock()
			if ok {
				reply <- msg
			}
		}
	}
}

// request sends msg with a fresh ref and waits for its ack or error.
func (c *Client) request(ctx context.Context, conn *connection, msg realtime.Message) error {
	msg.Ref = strconv.FormatUint(c.ref.Add(1), 10)
	reply := make(chan realtime.Message, 1)

	c.mu.Lock()
	c.pending[msg.Ref] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Ref)
		c.mu.Unlock()
	}()

	if err := conn.write(msg, c.cfg.AckTimeout); err != nil {
		conn.fail(err)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		if r.Type == realtime.TypeError {
			return &ServerError{Channel: r.Channel, Message: r.Error}
		}
		return nil
	case <-conn.lost:
		return ErrDisconnected
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClientClosed
	}
}

func (c *Client) current() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// supervise owns the connection lifecycle: heartbeats, reconnects, re-joins.
func (c *Client) supervise(conn *connection) {
	defer close(c.done)

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.closed:
			conn.fail(ErrClientClosed)
			return

		case <-heartbeat.C:
			go func(conn *connection) {
				ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
				defer cancel()
				if err := c.request(ctx, conn, realtime.Message{Type: realtime.TypeHeartbeat}); err != nil {
					c.logger.Warn().Err(err).Msg("heartbeat failed")
					conn.fail(err)
				}
			}(conn)

		case <-c.resync:
			c.logger.Info().Msg("server requested resync")
			c.notifyReconnect()

		case <-conn.lost:
			c.logger.Warn().Err(conn.err).Msg("realtime connection lost")
			next := c.reconnect()
			if next == nil {
				return
			}
			conn = next
			if c.rejoin(conn) {
				c.notifyReconnect()
			}
		}
	}
}

// reconnect dials with exponential backoff until it succeeds or the client
// is closed. A refused token ends every subscription and returns nil.
func (c *Client) reconnect() *connection {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.Reset()

	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		select {
		case <-c.closed:
			return nil
		case <-time.After(wait):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
		conn, err := c.connect(ctx)
		cancel()
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Error().Err(err).Msg("realtime credentials refused, giving up")
			for _, s := range c.openSubscriptions() {
				c.drop(s, err)
			}
			return nil
		}
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", b.NextBackOff()).Msg("realtime reconnect failed")
			continue
		}
		c.logger.Info().Int("attempt", attempt).Msg("realtime reconnected")
		c.attach(conn)
		return conn
	}
}

func (c *Client) openSubscriptions() []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	return subs
}

// rejoin joins every open channel on conn. A channel the server refuses is
// dropped. Any other failure fails conn and reports false so the next
// connection retries the remaining channels.
func (c *Client) rejoin(conn *connection) bool {
	for _, s := range c.openSubscriptions() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
		err := c.request(ctx, conn, s.joinMessage())
		cancel()
		var refused *ServerError
		switch {
		case err == nil:
		case errors.As(err, &refused):
			c.logger.Error().Err(err).Str("channel", s.channel.Name).Msg("rejoin refused, dropping subscription")
			c.drop(s, err)
		default:
			c.logger.Warn().Err(err).Str("channel", s.channel.Name).Msg("rejoin failed")
			conn.fail(err)
			return false
		}
	}
	return true
}

// drop ends s without a leave request and reports err to its owner.
func (c *Client) drop(s *Subscription, err error) {
	c.forget(s)
	if s.closed.Swap(true) {
		return
	}
	if s.onError != nil {
		s.onError(err)
	}
}

func (c *Client) notifyReconnect() {
	for _, s := range c.openSubscriptions() {
		s.reconnected()
	}
}

// Subscribe joins ch and invokes handler once per change event delivered on
// it, in delivery order, from the client's read goroutine. handler must not
// block and must not call back into the Client.
func (c *Client) Subscribe(ctx context.Context, ch Channel, handler func(realtime.Change), opts ...SubscribeOption) (*Subscription, error) {
	if ch.Name == "" || ch.Table == "" {
		return nil, errors.New("channel name and table are required")
	}
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	s := &Subscription{channel: ch, handler: handler}
	s.leave = func() error { return c.leave(s) }
	for _, opt := range opts {
		opt(s)
	}

	c.mu.Lock()
	if _, taken := c.subs[ch.Name]; taken {
		c.mu.Unlock()
		return nil, fmt.Errorf("channel %q already subscribed", ch.Name)
	}
	// Registered before the join so changes racing the ack are delivered.
	c.subs[ch.Name] = s
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.forget(s)
		return nil, ErrDisconnected
	}
	if err := c.request(ctx, conn, s.joinMessage()); err != nil {
		c.forget(s)
		return nil, err
	}
	return s, nil
}

func (c *Client) forget(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[s.channel.Name] == s {
		delete(c.subs, s.channel.Name)
	}
}

func (c *Client) leave(s *Subscription) error {
	c.forget(s)
	conn := c.current()
	if conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	defer cancel()
	err := c.request(ctx, conn, realtime.Message{Type: realtime.TypeLeave, Channel: s.channel.Name})
	if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrClientClosed) {
		return nil
	}
	return err
}

// Close stops reconnecting, closes the connection and waits for the
// background goroutine to exit.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	<-c.done
	return nil
}

// Channel describes one realtime subscription.
type Channel struct {
	Name   string
	Table  string
	Filter realtime.Filter
	// Events limits delivery; empty means every event.
	Events []realtime.Event
}

// SubscribeOption configures a Subscription.
type SubscribeOption func(*Subscription)

// OnReconnect registers fn to run after the connection was re-established
// and the channel re-joined, or after the server requested a resync. Events
// may have been missed, so fn should re-fetch.
func OnReconnect(fn func()) SubscribeOption {
	return func(s *Subscription) { s.onReconnect = fn }
}

// OnError registers fn to run when the subscription ends without Close:
// the server refused the re-join after a reconnect, or refused the token.
// The subscription is already closed when fn runs. fn must not block.
func OnError(fn func(error)) SubscribeOption {
	return func(s *Subscription) { s.onError = fn }
}

// Subscription is the handle of a joined channel.
type Subscription struct {
	leave       func() error
	channel     Channel
	handler     func(realtime.Change)
	onReconnect func()
	onError     func(error)
	closed      atomic.Bool
}

func (s *Subscription) joinMessage() realtime.Message {
	return realtime.Message{
		Type:    realtime.TypeJoin,
		Channel: s.channel.Name,
		Table:   s.channel.Table,
		Filter:  s.channel.Filter.String(),
		Events:  s.channel.Events,
	}
}

func (s *Subscription) deliver(ch realtime.Change) {
	if s.closed.Load() {
		return
	}
	s.handler(ch)
}

func (s *Subscription) reconnected() {
	if s.closed.Load() || s.onReconnect == nil {
		return
	}
	s.onReconnect()
}

// Channel returns the channel this subscription joined.
func (s *Subscription) Channel() Channel { return s.channel }

// Close leaves the channel. No handler invocation starts after Close
// returns. Calling Close more than once is a no-op.
func (s *Subscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.leave()
}

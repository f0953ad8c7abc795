// Package client is the connection-side counterpart of the coordination
// server: it establishes the WebSocket, deduplicates join requests, runs the
// heartbeat, and reconnects with bounded exponential backoff.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messenger-ws/internal/domain"
)

// State is the connection lifecycle state. Connected is the only state in
// which join/send/typing operations are accepted; anything issued outside it
// is dropped with a warning.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("client is closed")

// ErrNotConnected is returned for operations issued while not connected.
var ErrNotConnected = errors.New("client is not connected")

// Options configures a Client. URL is the server base (e.g. ws://host:8082);
// the session and user identity complete the endpoint path.
type Options struct {
	URL       string
	SessionID string // defaults to a fresh UUID (one logical session per client)
	UserID    string

	HeartbeatInterval time.Duration // default 25s
	PongTimeout       time.Duration // default 2x heartbeat interval

	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 30s
	BackoffFactor  float64       // default 2

	// OnEvent receives every server event, including pong and error events.
	OnEvent func(ev domain.ServerEvent)
}

// Client is a reconnecting messenger connection.
type Client struct {
	opts Options
	url  string

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	gen          int // bumped per transport so stale loops stand down
	lastPong     time.Time
	closed       bool
	joinedGlobal bool
	joinedConvs  map[string]bool

	writeMu sync.Mutex
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("URL is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("UserID is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 2 * opts.HeartbeatInterval
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 2
	}

	return &Client{
		opts:        opts,
		url:         fmt.Sprintf("%s/ws/%s/%s", opts.URL, opts.SessionID, opts.UserID),
		joinedConvs: make(map[string]bool),
	}, nil
}

// SessionID returns the client's logical session identity.
func (c *Client) SessionID() string {
	return c.opts.SessionID
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection. A duplicate attempt while a connection
// is live or in progress is suppressed. After a successful connect, dropped
// connections reconnect automatically until Close.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		log.Printf("Duplicate connection attempt suppressed (state: %s)", c.state)
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.lastPong = time.Now()
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, gen)

	c.rejoin()
	return nil
}

// rejoin re-issues every previously joined room request; joins are
// idempotent server-side, so a reconnect never duplicates membership.
func (c *Client) rejoin() {
	c.mu.Lock()
	global := c.joinedGlobal
	convs := make([]string, 0, len(c.joinedConvs))
	for id := range c.joinedConvs {
		convs = append(convs, id)
	}
	c.mu.Unlock()

	if global {
		if err := c.send(domain.EventJoinGlobal, domain.JoinGlobalPayload{UserID: c.opts.UserID}); err != nil {
			log.Printf("Failed to rejoin global room: %v", err)
		}
	}
	for _, id := range convs {
		if err := c.send(domain.EventJoinPrivate, domain.JoinPrivatePayload{ConversationID: id}); err != nil {
			log.Printf("Failed to rejoin conversation %s: %v", id, err)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		var ev domain.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			log.Printf("Read error: %v", err)
			break
		}
		if ev.Type == domain.EventPong {
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
	conn.Close()
	c.onDisconnect(gen)
}

// heartbeatLoop sends an application-level ping every interval and judges
// the connection half-open when no pong arrived within the timeout.
func (c *Client) heartbeatLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := gen != c.gen || c.state != StateConnected
		silent := time.Since(c.lastPong) > c.opts.PongTimeout
		c.mu.Unlock()

		if stale {
			return
		}
		if silent {
			log.Printf("Heartbeat timeout: no pong within %s, dropping connection", c.opts.PongTimeout)
			conn.Close()
			return
		}
		if err := c.send(domain.EventPing, nil); err != nil {
			log.Printf("Heartbeat ping failed: %v", err)
			conn.Close()
			return
		}
	}
}

func (c *Client) onDisconnect(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateConnecting
	c.mu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop retries with exponential backoff, capped at MaxBackoff, until
// a dial succeeds or the client is closed.
func (c *Client) reconnectLoop() {
	backoff := c.opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		time.Sleep(backoff)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.dial(); err == nil {
			log.Printf("Reconnected after %d attempt(s)", attempt)
			return
		} else if errors.Is(err, ErrClosed) {
			return
		} else {
			log.Printf("Reconnect attempt %d failed: %v (next in %s)", attempt, err, backoff)
		}

		backoff = time.Duration(float64(backoff) * c.opts.BackoffFactor)
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

// JoinGlobal subscribes the session to the global room.
func (c *Client) JoinGlobal() error {
	if !c.ready("joinGlobal") {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.joinedGlobal = true
	c.mu.Unlock()
	return c.send(domain.EventJoinGlobal, domain.JoinGlobalPayload{UserID: c.opts.UserID})
}

// JoinConversation subscribes the session to a conversation's room.
func (c *Client) JoinConversation(conversationID string) error {
	if !c.ready("joinPrivate") {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.joinedConvs[conversationID] = true
	c.mu.Unlock()
	return c.send(domain.EventJoinPrivate, domain.JoinPrivatePayload{ConversationID: conversationID})
}

// SendMessage submits a message and returns the temp ID the server will echo
// in the message and status events, for optimistic local rendering.
func (c *Client) SendMessage(conversationID, content string, replyToID *string) (string, error) {
	if !c.ready("sendMessage") {
		return "", ErrNotConnected
	}
	tempID := uuid.NewString()
	err := c.send(domain.EventSendMessage, domain.SendMessagePayload{
		ConversationID: conversationID,
		SenderID:       c.opts.UserID,
		Content:        content,
		ReplyToID:      replyToID,
		TempID:         tempID,
	})
	if err != nil {
		return "", err
	}
	return tempID, nil
}

// Typing signals typing-start to the other room members.
func (c *Client) Typing(conversationID, name string) error {
	if !c.ready("typing") {
		return ErrNotConnected
	}
	return c.send(domain.EventTyping, domain.TypingPayload{
		ConversationID: conversationID,
		UserID:         c.opts.UserID,
		Name:           name,
	})
}

// StopTyping signals typing-stop to the other room members.
func (c *Client) StopTyping(conversationID string) error {
	if !c.ready("stopTyping") {
		return ErrNotConnected
	}
	return c.send(domain.EventStopTyping, domain.TypingPayload{
		ConversationID: conversationID,
		UserID:         c.opts.UserID,
	})
}

// GoOffline asks the server to treat this session as offline immediately,
// used for best-effort page-unload notification.
func (c *Client) GoOffline() error {
	if !c.ready("goOffline") {
		return ErrNotConnected
	}
	return c.send(domain.EventGoOffline, domain.GoOfflinePayload{UserID: c.opts.UserID})
}

// Close tears the connection down and stops all reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) ready(op string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		log.Printf("Dropping %s: client is %s", op, c.state)
		return false
	}
	return true
}

func (c *Client) send(eventType string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ev := domain.ClientEvent{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		ev.Data = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(ev)
}

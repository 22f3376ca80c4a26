package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventSendChat   = "send_chat"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventNewChat    = "new_chat"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultWriteWait   = 5 * time.Second
	DefaultSendBuffer  = 32
	maxMessageSize     = 64 * 1024
)

var (
	ErrClosed         = errors.New("room channel is closed")
	ErrSendBufferFull = errors.New("room send buffer is full")
)

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomRequest struct {
	StreamKey string `json:"stream_key"`
}

type chatRequest struct {
	StreamKey string `json:"stream_key"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
}

type presence struct {
	Count int `json:"count"`
}

// ChatMessage is one line of room chat.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Handler receives inbound room events on the read goroutine.
type Handler interface {
	UserJoined(count int)
	UserLeft(count int)
	ChatReceived(msg ChatMessage)
}

type NopHandler struct{}

func (NopHandler) UserJoined(int)           {}
func (NopHandler) UserLeft(int)             {}
func (NopHandler) ChatReceived(ChatMessage) {}

type Config struct {
	URL         string
	Header      http.Header
	DialTimeout time.Duration
	WriteWait   time.Duration
	SendBuffer  int
}

func (c *Config) defaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
}

// Client is a connection to the room channel. Writes are queued and sent
// by a single write pump; inbound events are dispatched by a read pump.
type Client struct {
	cfg     Config
	conn    *websocket.Conn
	handler Handler

	mu     sync.Mutex
	closed bool
	send   chan []byte

	writerDone chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// Dial connects to the room channel and starts the pumps.
func Dial(ctx context.Context, cfg Config, handler Handler) (*Client, error) {
	cfg.defaults()
	if handler == nil {
		handler = NopHandler{}
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room channel: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		cfg:        cfg,
		conn:       conn,
		handler:    handler,
		send:       make(chan []byte, cfg.SendBuffer),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	log.Info().Str("module", "room").Str("url", cfg.URL).Msg("room channel connected")
	return c, nil
}

func (c *Client) Join(streamKey string) error {
	return c.emit(EventJoinRoom, roomRequest{StreamKey: streamKey})
}

func (c *Client) Leave(streamKey string) error {
	return c.emit(EventLeaveRoom, roomRequest{StreamKey: streamKey})
}

func (c *Client) SendChat(streamKey, username, message string) error {
	return c.emit(EventSendChat, chatRequest{StreamKey: streamKey, Message: message, Username: username})
}

// Done is closed once the read side of the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.readerDone
}

func (c *Client) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) writePump() {
	defer close(c.writerDone)
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
			log.Error().Err(err).Str("module", "room").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "room").Msg("writePump write error")
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.readerDone)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isClosed() {
				log.Warn().Err(err).Str("module", "room").Msg("readPump read error")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "room").Msg("bad json")
		return
	}

	switch env.Event {
	case EventUserJoined, EventUserLeft:
		var p presence
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Error().Err(err).Str("module", "room").Str("event", env.Event).Msg("bad payload")
			return
		}
		if env.Event == EventUserJoined {
			c.handler.UserJoined(p.Count)
		} else {
			c.handler.UserLeft(p.Count)
		}
	case EventNewChat:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			log.Error().Err(err).Str("module", "room").Str("event", env.Event).Msg("bad payload")
			return
		}
		c.handler.ChatReceived(msg)
	default:
		log.Warn().Str("module", "room").Str("event", env.Event).Msg("unknown event")
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close flushes queued frames, sends a close frame and tears the
// connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		select {
		case <-c.writerDone:
		case <-time.After(c.cfg.WriteWait):
		}
		// Give the peer a moment to echo the close frame.
		select {
		case <-c.readerDone:
		case <-time.After(c.cfg.WriteWait):
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
		<-c.readerDone
	})
	return c.closeErr
}

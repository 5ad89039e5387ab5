package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
)

// ErrNotConnected is returned by Emit while the channel has no live connection
var ErrNotConnected = errors.New("realtime channel not connected")

// errDisconnected is returned by Connect when Disconnect interrupts it
var errDisconnected = errors.New("realtime channel disconnected")

// Config contains channel configuration
type Config struct {
	URL               string
	Token             string        // bearer token, optional
	ReconnectInterval time.Duration // fixed delay between dial attempts
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration // keepalive, zero disables
}

// Hooks observe the connection lifecycle. All hooks are optional.
type Hooks struct {
	OnConnect      func(reconnected bool)
	OnDisconnect   func(err error)
	OnConnectError func(err error)
}

// Handler receives the raw payload of an inbound event
type Handler func(data json.RawMessage)

type subscription struct {
	handler Handler
}

// Channel is a single reconnecting WebSocket connection shared by all
// consumers of server-pushed events
type Channel struct {
	config  Config
	hooks   Hooks
	metrics *metrics.Metrics
	logger  *slog.Logger

	handlers   map[string][]*subscription
	handlersMu sync.RWMutex

	conn      *websocket.Conn
	rooms     map[string]struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	firstConn chan struct{}
	firstOnce *sync.Once
	mu        sync.Mutex

	writeMu   sync.Mutex
	connected atomic.Bool
}

// NewChannel creates a disconnected channel
func NewChannel(config Config, hooks Hooks, m *metrics.Metrics, logger *slog.Logger) (*Channel, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("websocket URL cannot be empty")
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 2 * time.Second
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.PingInterval < 0 {
		config.PingInterval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Channel{
		config:   config,
		hooks:    hooks,
		metrics:  m,
		logger:   logger,
		handlers: make(map[string][]*subscription),
		rooms:    make(map[string]struct{}),
	}, nil
}

// Connect starts the connection loop and waits for the first successful
// connection. If ctx ends first the error is returned while the loop keeps
// redialing in the background until Disconnect.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel == nil {
		runCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		c.firstConn = make(chan struct{})
		c.firstOnce = &sync.Once{}
		go c.run(runCtx, c.done)
	}
	first, done := c.firstConn, c.done
	c.mu.Unlock()

	select {
	case <-first:
		return nil
	case <-done:
		return errDisconnected
	case <-ctx.Done():
		return fmt.Errorf("realtime connect: %w", ctx.Err())
	}
}

// Disconnect closes the connection and stops reconnecting. Subscriptions
// and joined rooms are kept for a later Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether a connection is currently live
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Subscribe registers handler for event. The returned function removes
// exactly this registration and is safe to call more than once.
func (c *Channel) Subscribe(event string, handler Handler) (unsubscribe func()) {
	sub := &subscription{handler: handler}

	c.handlersMu.Lock()
	c.handlers[event] = append(c.handlers[event], sub)
	c.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.handlersMu.Lock()
			defer c.handlersMu.Unlock()

			subs := c.handlers[event]
			for i, s := range subs {
				if s == sub {
					c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// JoinMotion subscribes the connection to a motion's room. Rooms are
// remembered and re-joined after every reconnect.
func (c *Channel) JoinMotion(motionID string) error {
	if motionID == "" {
		return fmt.Errorf("motion id cannot be empty")
	}

	c.mu.Lock()
	c.rooms[motionID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.send(conn, EventJoinMotion, motionID)
}

// LeaveMotion unsubscribes from a motion's room
func (c *Channel) LeaveMotion(motionID string) error {
	if motionID == "" {
		return fmt.Errorf("motion id cannot be empty")
	}

	c.mu.Lock()
	delete(c.rooms, motionID)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.send(conn, EventLeaveMotion, motionID)
}

// Rooms returns the joined motion rooms
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomsLocked()
}

// Emit sends an event to the server
func (c *Channel) Emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return c.send(conn, event, data)
}

func (c *Channel) roomsLocked() []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// run dials and serves connections until ctx is cancelled
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	connectedBefore := false
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Realtime connection error",
				slog.String("url", c.config.URL),
				slog.String("error", err.Error()),
			)
			if c.hooks.OnConnectError != nil {
				c.hooks.OnConnectError(err)
			}
		} else {
			c.serve(ctx, conn, connectedBefore)
			connectedBefore = true
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-time.After(c.config.ReconnectInterval):
			c.metrics.RecordRealtimeReconnect()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := make(http.Header)
	if c.config.Token != "" {
		headers.Set("Authorization", "Bearer "+c.config.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve runs one connection until it drops or ctx is cancelled
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn, reconnected bool) {
	c.mu.Lock()
	c.conn = conn
	rooms := c.roomsLocked()
	firstConn, firstOnce := c.firstConn, c.firstOnce
	c.mu.Unlock()

	c.connected.Store(true)
	c.metrics.SetRealtimeConnected(true)

	for _, room := range rooms {
		if err := c.send(conn, EventJoinMotion, room); err != nil {
			c.logger.Warn("Failed to re-join motion room",
				slog.String("motion_id", room),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("Realtime channel connected",
		slog.String("url", c.config.URL),
		slog.Bool("reconnected", reconnected),
		slog.Int("rooms", len(rooms)),
	)
	firstOnce.Do(func() { close(firstConn) })
	if c.hooks.OnConnect != nil {
		c.hooks.OnConnect(reconnected)
	}

	stopClose := context.AfterFunc(ctx, func() { c.closeConn(conn) })
	pingDone := make(chan struct{})
	pingStop := make(chan struct{})
	go c.pingLoop(conn, pingStop, pingDone)

	err := c.readLoop(conn)

	stopClose()
	close(pingStop)
	<-pingDone

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	c.connected.Store(false)
	c.metrics.SetRealtimeConnected(false)

	if ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		c.logger.Warn("Realtime channel disconnected",
			slog.String("error", err.Error()),
		)
	} else {
		c.logger.Info("Realtime channel disconnected")
	}
	if c.hooks.OnDisconnect != nil {
		c.hooks.OnDisconnect(err)
	}
}

// readLoop dispatches inbound frames until the connection fails
func (c *Channel) readLoop(conn *websocket.Conn) error {
	if c.config.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * c.config.PingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * c.config.PingInterval))
		})
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if c.config.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * c.config.PingInterval))
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.logger.Warn("Ignoring malformed realtime frame",
				slog.Int("bytes", len(data)),
			)
			continue
		}
		c.metrics.RecordRealtimeEvent("in", frame.Event)
		c.dispatch(frame.Event, frame.Data)
	}
}

// dispatch delivers an event to its current subscribers
func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.handlersMu.RLock()
	subs := append([]*subscription(nil), c.handlers[event]...)
	c.handlersMu.RUnlock()

	if len(subs) == 0 {
		c.logger.Debug("No subscribers for realtime event", slog.String("event", event))
		return
	}
	for _, sub := range subs {
		sub.handler(data)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if c.config.PingInterval <= 0 {
		<-stop
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("Realtime ping failed", slog.String("error", err.Error()))
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Channel) send(conn *websocket.Conn, event string, data any) error {
	frame, err := NewFrame(event, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	c.metrics.RecordRealtimeEvent("out", event)
	return nil
}

func (c *Channel) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(2*time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

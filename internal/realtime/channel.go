// Package realtime implements the room-based event channel between this
// client and the sync server.
//
// A connection moves through disconnected -> connecting -> connected.
// On entering connected the channel joins a room keyed by the user's own
// identity plus one room per currently-known shared resource, so a
// reconnect after a dropped link restores every subscription without
// help from the caller. Inbound events are dispatched to a Handler and
// additionally wake the reconciliation engine, which heals anything the
// live event alone could not express.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Shared update sub-types carried inside shared_update events.
const (
	UpdateTask       = "task"
	UpdateTaskDelete = "task_delete"
	UpdateList       = "list"
	UpdateListDelete = "list_delete"
	UpdateKick       = "kick"
)

// SharedUpdate is the payload of a shared_update event.
type SharedUpdate struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ResourceID string          `json:"resourceId,omitempty"`
}

// message is the wire frame in both directions.
type message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	SpaceID string          `json:"spaceId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler consumes inbound events. The engine implements this.
type Handler interface {
	HandleInvitation(inv schema.Invitation)
	HandleNotification(n schema.Notification)
	HandleSharedUpdate(u SharedUpdate)
}

// Conn is the minimal connection surface the channel needs. The default
// implementation wraps coder/websocket; tests substitute a fake.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Conn to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client closing")
}

// DefaultDialer dials a websocket connection.
func DefaultDialer(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// Config holds channel configuration.
type Config struct {
	// URL of the realtime endpoint.
	URL string

	// UserID keys the client's own room.
	UserID string

	// Rooms supplies the ids of currently-known shared resources to
	// rejoin on every (re)connect.
	Rooms func() []string

	// Handler receives inbound events.
	Handler Handler

	// OnEvent runs after every inbound event, in the background. The
	// caller wires this to a reconciliation pass.
	OnEvent func()

	// OnConnect runs in the background after every successful
	// (re)connect, once the rooms are joined. The caller wires this to
	// a reconciliation pass so state missed while offline heals
	// immediately rather than on the next interval tick.
	OnConnect func()

	// Dialer opens connections. Defaults to DefaultDialer.
	Dialer Dialer

	// ReconnectDelay is the initial backoff after a dropped
	// connection; it doubles up to 30 seconds.
	ReconnectDelay time.Duration

	// Logger for channel activity.
	Logger *log.Logger
}

// Channel maintains the connection, its room subscriptions, and the
// outbound broadcast path. It is the injected connection manager shared
// by the mutation engine and the daemon; there is no package-level
// connection.
type Channel struct {
	config *Config

	mu    sync.Mutex
	state ConnState
	conn  Conn

	out chan message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChannel creates a channel. Start must be called to connect.
func NewChannel(config *Config) (*Channel, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("userId cannot be empty")
	}
	if config.Dialer == nil {
		config.Dialer = DefaultDialer
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		config: config,
		state:  StateDisconnected,
		out:    make(chan message, 64),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// State reports the current connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start runs the connect/read/reconnect loop until Stop is called.
func (c *Channel) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop tears the connection down and waits for the loop to exit.
func (c *Channel) Stop() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.setState(StateDisconnected)
}

func (c *Channel) run() {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	for {
		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.config.Dialer(c.ctx, c.config.URL)
		if err != nil {
			c.setState(StateDisconnected)
			c.config.Logger.Printf("Connect failed: %v (retrying in %s)", err, delay)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > 30*time.Second {
				delay = 30 * time.Second
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		delay = c.config.ReconnectDelay
		c.config.Logger.Println("Connected")

		c.joinRooms(conn)
		if c.config.OnConnect != nil {
			go c.config.OnConnect()
		}

		pumpCtx, stopPump := context.WithCancel(c.ctx)
		c.wg.Add(1)
		go c.writePump(pumpCtx, conn)
		c.readLoop(conn)
		stopPump()

		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		c.config.Logger.Println("Disconnected")
	}
}

// joinRooms subscribes to the user's own room and one room per known
// shared resource.
func (c *Channel) joinRooms(conn Conn) {
	rooms := []string{c.config.UserID}
	if c.config.Rooms != nil {
		rooms = append(rooms, c.config.Rooms()...)
	}
	for _, room := range rooms {
		if room == "" {
			continue
		}
		if err := c.send(conn, message{Type: "join_room", Room: room}); err != nil {
			c.config.Logger.Printf("Failed to join room %s: %v", room, err)
			return
		}
	}
	c.config.Logger.Printf("Joined %d rooms", len(rooms))
}

func (c *Channel) send(conn Conn, msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, data)
}

// writePump drains queued outbound frames onto the connection. Writes
// happen here rather than on the caller's goroutine, so a slow link
// never stalls a mutation.
func (c *Channel) writePump(ctx context.Context, conn Conn) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if err := c.send(conn, msg); err != nil {
				c.config.Logger.Printf("Outbound write failed: %v", err)
			}
		}
	}
}

// readLoop consumes inbound events until the connection drops.
func (c *Channel) readLoop(conn Conn) {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				c.config.Logger.Printf("Read failed: %v", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.config.Logger.Printf("Dropping malformed event: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound event to the handler, then wakes the
// reconciliation engine in the background.
func (c *Channel) dispatch(msg message) {
	h := c.config.Handler
	if h == nil {
		return
	}

	switch msg.Type {
	case "invitation":
		var inv schema.Invitation
		if err := json.Unmarshal(msg.Data, &inv); err != nil {
			c.config.Logger.Printf("Dropping malformed invitation: %v", err)
			return
		}
		h.HandleInvitation(inv)

	case "notification":
		var n schema.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			c.config.Logger.Printf("Dropping malformed notification: %v", err)
			return
		}
		h.HandleNotification(n)

	case "shared_update":
		var u SharedUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			c.config.Logger.Printf("Dropping malformed shared update: %v", err)
			return
		}
		h.HandleSharedUpdate(u)

	default:
		c.config.Logger.Printf("Ignoring unknown event type %q", msg.Type)
		return
	}

	if c.config.OnEvent != nil {
		go c.config.OnEvent()
	}
}

// Broadcast publishes a mutation to other live sessions, scoped to the
// owning space. The frame is queued for the write pump and Broadcast
// returns immediately; failures are logged and dropped, with the
// reconciliation engine as the backstop for missed broadcasts.
func (c *Channel) Broadcast(eventType, spaceID string, data any) {
	if c.State() != StateConnected {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		c.config.Logger.Printf("Failed to encode broadcast %s: %v", eventType, err)
		return
	}
	inner, err := json.Marshal(SharedUpdate{Type: eventType, Data: payload})
	if err != nil {
		c.config.Logger.Printf("Failed to encode broadcast %s: %v", eventType, err)
		return
	}

	select {
	case c.out <- message{Type: "realtime_update", SpaceID: spaceID, Data: inner}:
	default:
		c.config.Logger.Printf("Dropping broadcast %s: outbound queue full", eventType)
	}
}

// BroadcastDelete publishes a tombstone for a deleted entity.
func (c *Channel) BroadcastDelete(entityType, spaceID, id string) {
	c.Broadcast(entityType+"_delete", spaceID, map[string]string{"id": id})
}

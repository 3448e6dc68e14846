package rig

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/emotedriver/internal/bus"
)

// WSClient implements Controller over a WebSocket connection to the player.
// Commands are fire-and-forget JSON messages; the client reconnects with
// exponential backoff and drops commands while disconnected (the lip-sync
// stream is real-time, stale frames are worthless).
type WSClient struct {
	baseURL    string
	eventBus   *bus.EventBus
	logger     zerolog.Logger
	backoffMin time.Duration
	backoffMax time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// NewWSClient creates a client for the player at baseURL (http/https or
// ws/wss). eventBus may be nil.
func NewWSClient(baseURL string, eventBus *bus.EventBus, logger zerolog.Logger) *WSClient {
	return &WSClient{
		baseURL:    baseURL,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "rig-ws").Logger(),
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
	}
}

// Connect starts the connection loop in the background.
func (c *WSClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.connectLoop(ctx)
	return nil
}

// Disconnect closes the connection and stops reconnecting.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}

// IsConnected returns connection status.
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetVariable implements Controller.
func (c *WSClient) SetVariable(name string, value float64, duration time.Duration) error {
	return c.send(Command{Type: CmdSetVariable, Name: name, Value: value, DurationMs: duration.Milliseconds()})
}

// SetCoord implements Controller.
func (c *WSClient) SetCoord(x, y int, duration time.Duration) error {
	return c.send(Command{Type: CmdSetCoord, X: x, Y: y, DurationMs: duration.Milliseconds()})
}

// SetScale implements Controller.
func (c *WSClient) SetScale(scale float64, duration time.Duration) error {
	return c.send(Command{Type: CmdSetScale, Value: scale, DurationMs: duration.Milliseconds()})
}

// SetRotation implements Controller.
func (c *WSClient) SetRotation(deg float64, duration time.Duration) error {
	return c.send(Command{Type: CmdSetRotation, Value: deg, DurationMs: duration.Milliseconds()})
}

// Play implements Controller.
func (c *WSClient) Play(timeline string) error {
	return c.send(Command{Type: CmdPlay, Name: timeline})
}

// StopAllTimelines implements Controller.
func (c *WSClient) StopAllTimelines() error {
	return c.send(Command{Type: CmdStopAllTimelines})
}

func (c *WSClient) send(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// connectLoop maintains the WebSocket connection with reconnection
func (c *WSClient) connectLoop(ctx context.Context) {
	backoff := c.backoffMin

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialed, err := c.connectWS(ctx)
		if dialed {
			// a connection was established, so a later drop restarts
			// the backoff ladder from the bottom
			backoff = c.backoffMin
		}

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		if dialed {
			c.publish(bus.EventTypeRigDisconnected)
		}

		c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Player connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < c.backoffMax {
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
		}
	}
}

// connectWS dials and then blocks reading until the connection fails; the
// player sends nothing we act on, but reads detect closure promptly.
// dialed reports whether a connection was established before the error.
func (c *WSClient) connectWS(ctx context.Context) (dialed bool, err error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/v1/rig/ws"
	}

	c.logger.Info().Str("url", u.String()).Msg("Connecting to player")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.publish(bus.EventTypeRigConnected)
	c.logger.Info().Msg("Connected to player")

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return true, ctx.Err()
		default:
			if _, _, err := conn.ReadMessage(); err != nil {
				return true, fmt.Errorf("read: %w", err)
			}
		}
	}
}

func (c *WSClient) publish(t bus.EventType) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: t, Data: map[string]any{"url": c.baseURL}})
	}
}

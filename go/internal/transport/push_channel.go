package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
)

// Handler receives routed server frames. Calls happen on the read pump
// goroutine, one at a time.
type Handler interface {
	OnClaim(res protocol.ClaimResult)
	OnState(snap protocol.Snapshot)
	OnServerError(code string)
}

// Config holds push channel configuration.
type Config struct {
	URL              string
	Header           http.Header
	ReconnectDelay   time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

// DefaultConfig returns the default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		ReconnectDelay:   2 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// PushChannel is the persistent WebSocket to the game server. It reconnects
// forever after a fixed delay and never queues outbound messages.
type PushChannel struct {
	config  Config
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewPushChannel creates an unconnected channel.
func NewPushChannel(config Config, clock clockwork.Clock, handler Handler) *PushChannel {
	return &PushChannel{
		config: config,
		clock:  clock,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		handler: handler,
	}
}

// Connect starts the dial/reconnect loop. Calling it again is a no-op.
func (c *PushChannel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true

	go c.run(ctx)
}

// IsUsable reports whether a connection is currently open.
func (c *PushChannel) IsUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// TrySend writes msg if a connection is open and reports whether it did.
// A failed write drops the connection so the reconnect loop takes over, and
// reports false so the caller falls back.
func (c *PushChannel) TrySend(msg interface{}) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode push message")
		return false
	}

	// Only writes serialize on writeMu; IsUsable and closeConn never wait
	// behind a slow peer.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Msg("push write failed, dropping connection")
		conn.Close()
		c.clearConn(conn)
		return false
	}
	return true
}

func (c *PushChannel) run(ctx context.Context) {
	log.Info().Str("url", c.config.URL).Msg("push channel started")

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
		if err != nil {
			log.Debug().Err(err).Str("url", c.config.URL).Msg("push dial failed")
		} else {
			c.setConn(conn)
			log.Info().Str("url", c.config.URL).Msg("push channel connected")

			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					c.closeConn()
				case <-done:
				}
			}()
			c.readPump(conn)
			close(done)
			c.clearConn(conn)
		}

		if ctx.Err() != nil {
			log.Info().Msg("push channel stopped")
			return
		}

		log.Info().Dur("delay", c.config.ReconnectDelay).Msg("push channel reconnecting")
		select {
		case <-ctx.Done():
			log.Info().Msg("push channel stopped")
			return
		case <-c.clock.After(c.config.ReconnectDelay):
		}
	}
}

// readPump routes inbound frames until the connection fails.
func (c *PushChannel) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(c.config.MaxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("push channel closed unexpectedly")
			} else {
				log.Debug().Err(err).Msg("push channel closed")
			}
			return
		}

		if err := c.route(data); err != nil {
			log.Debug().Err(err).Int("size", len(data)).Msg("dropped push frame")
		}
	}
}

func (c *PushChannel) route(data []byte) error {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		return err
	}

	switch msg.Type {
	case protocol.MessageTypeWelcome:
		log.Debug().Msg("push welcome")
	case protocol.MessageTypeClaimOK:
		c.handler.OnClaim(*msg.Claim)
	case protocol.MessageTypeState:
		c.handler.OnState(*msg.State)
	case protocol.MessageTypeError:
		c.handler.OnServerError(msg.ErrorCode)
	default:
		return fmt.Errorf("%w: unrouted type %q", protocol.ErrMalformedMessage, msg.Type)
	}
	return nil
}

func (c *PushChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// clearConn forgets conn unless a newer connection already replaced it.
func (c *PushChannel) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *PushChannel) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
}

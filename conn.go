package docroom

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 64
)

// Conn wraps one websocket participant. Outbound messages go through a
// buffered channel drained by a single writer goroutine, which keeps
// per-connection delivery ordered and keeps slow peers from blocking the
// coordination path.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func newConn(ws *websocket.Conn, limiter *rate.Limiter, logger zerolog.Logger) (*Conn, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
		logger:  logger.With().Str("conn", id).Logger(),
	}, nil
}

// ID returns the stable connection identity used as lock holder.
func (c *Conn) ID() string {
	return c.id
}

// Send queues msg for delivery. A peer whose buffer is full gets its
// connection killed instead of receiving a reordered or partial stream.
func (c *Conn) Send(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn().Msg("send buffer full, closing slow connection")
		_ = c.ws.Close()
	}
}

// allow reports whether another inbound message fits the rate limit.
func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. Runs in its own goroutine per connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

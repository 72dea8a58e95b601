// Package realtime implements the WebSocket side of the API: a per-socket
// writer pump and the three connection hubs (notifications, global chat and
// support tickets).
package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// mobile clients send no Origin; CORS is enforced on the HTTP surface
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one accepted socket. Only the write pump touches the
// connection for writing; everything else goes through Send.
type Client struct {
	UserID  uint64
	IsAdmin bool

	channel string
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	code    int
	reason  string
	log     zerolog.Logger
}

// Upgrade accepts the WebSocket handshake and starts the write pump.
func Upgrade(c echo.Context, channel string, log zerolog.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, err
	}
	cl := &Client{
		channel: channel,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		closed:  make(chan struct{}),
		code:    websocket.CloseNormalClosure,
		log:     log.With().Str("ws", channel).Logger(),
	}
	metrics.WSOpened(channel)
	go cl.writePump()
	return cl, nil
}

// Reject upgrades the request and immediately closes it with a policy
// violation, which is how clients learn that the handshake was refused.
func Reject(c echo.Context, channel, reason string, log zerolog.Logger) error {
	cl, err := Upgrade(c, channel, log)
	if err != nil {
		return nil
	}
	cl.CloseWith(websocket.ClosePolicyViolation, reason)
	<-cl.closed
	return nil
}

// Send queues a JSON frame. A peer whose buffer is full is dropped instead
// of stalling the sender.
func (c *Client) Send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("ws: marshal frame")
		return false
	}
	return c.SendRaw(b)
}

// SendRaw queues an already encoded frame.
func (c *Client) SendRaw(b []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		c.log.Warn().Uint64("user_id", c.UserID).Msg("ws: send buffer full, dropping peer")
		c.Close()
		return false
	}
}

// Close ends the connection with a normal closure.
func (c *Client) Close() { c.CloseWith(websocket.CloseNormalClosure, "") }

// CloseWith ends the connection with the given close code.
func (c *Client) CloseWith(code int, reason string) {
	c.once.Do(func() {
		c.code, c.reason = code, reason
		close(c.closed)
	})
}

// Done is closed once the client has been asked to shut down.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		metrics.WSClosed(c.channel)
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.code, c.reason), time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes frames queued before the close so a final message is not
// lost behind the close frame.
func (c *Client) drain() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if c.conn.WriteMessage(websocket.TextMessage, msg) != nil {
				return
			}
		default:
			return
		}
	}
}

// ReadLoop blocks reading frames until the peer goes away. The text frame
// "ping" is answered with a pong frame; anything else goes to onFrame,
// which may be nil.
func (c *Client) ReadLoop(onFrame func([]byte)) {
	defer c.Close()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("ws: read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if strings.TrimSpace(string(data)) == "ping" {
			c.Send(Pong())
			continue
		}
		if onFrame != nil {
			onFrame(data)
		}
	}
}

// Frame is the envelope of every server frame.
type Frame map[string]any

// Connected is the first frame on every channel.
func Connected(extra Frame) Frame {
	f := Frame{"type": "connection", "status": "connected"}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

func Pong() Frame { return Frame{"type": "pong"} }

// ErrorFrame reports a rejected client frame without closing the socket.
func ErrorFrame(msg string) Frame { return Frame{"type": "error", "message": msg} }

// Package wsconn exposes a websocket connection as a byte stream. Binary
// messages are concatenated on read, and every Write is sent as one message.
package wsconn

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/gorilla/websocket"
)

var ErrInvalidFrameType = errors.New("invalid frame type")

const (
	MessageType = websocket.BinaryMessage
)

var _ net.Conn = (*WebSocketConn)(nil)

type WebSocketConn struct {
	conn *websocket.Conn

	rmu sync.Mutex
	cur io.Reader

	wmu sync.Mutex
}

func NewWebSocketConn(conn *websocket.Conn) (c *WebSocketConn) {
	return &WebSocketConn{
		conn: conn,
	}
}

// Read implements net.Conn interface. A read never spans two messages.
func (c *WebSocketConn) Read(b []byte) (n int, err error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.cur == nil {
			mt, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}

				return 0, err
			}

			if mt != MessageType {
				return 0, ErrInvalidFrameType
			}

			c.cur = r
		}

		n, err = c.cur.Read(b)
		if errors.Is(err, io.EOF) {
			c.cur = nil

			if n == 0 {
				continue
			}

			err = nil
		}

		return n, err
	}
}

// Write implements net.Conn interface
func (c *WebSocketConn) Write(b []byte) (n int, err error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	w, err := c.conn.NextWriter(MessageType)
	if err != nil {
		return 0, err
	}

	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return w.Write(b)
}

// Close sends a close message and closes the underlying connection.
func (c *WebSocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	return c.conn.Close()
}

// LocalAddr implements net.Conn interface
func (c *WebSocketConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr implements net.Conn interface
func (c *WebSocketConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements net.Conn interface
func (c *WebSocketConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}

	return c.conn.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn interface
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn interface
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *WebSocketConn) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}

func (c *WebSocketConn) SetPongHandler(h func(appData string) error) {
	c.conn.SetPongHandler(h)
}

package conn

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tobsdb/samplestore/internal/auth"
)

type ConnCtx struct {
	conn     *websocket.Conn
	attempts int
	isAuthed bool

	User *auth.User
}

// New connections have a 30 second deadline.
// If the deadline is reached, and the connection is not authenticated, the connection is closed.
func NewConnCtx(c *websocket.Conn) *ConnCtx {
	c.SetReadDeadline(time.Now().Add(30 * time.Second))
	return &ConnCtx{c, 0, false, nil}
}

// SetAuthed marks the connection as authenticated and removes the deadline.
func (ctx *ConnCtx) SetAuthed() {
	ctx.isAuthed = true
	ctx.conn.SetReadDeadline(time.Time{})
}

const maxConnAttempts = 3

func (ctx *ConnCtx) Read() ([]byte, error) {
	_, buf, err := ctx.conn.ReadMessage()
	return buf, err
}

func (ctx *ConnCtx) Write(buf []byte) error {
	return ctx.conn.WriteMessage(websocket.TextMessage, buf)
}

func (ctx *ConnCtx) WriteString(buf string) error { return ctx.Write([]byte(buf)) }

func (ctx *ConnCtx) WriteResponse(r Response) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return ctx.Write(buf)
}

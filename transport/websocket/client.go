package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dyedai/shiritori-sugoroku/internal/entity"
)

var errSendBufferFull = errors.New("send buffer full")

// client wraps one websocket connection with a buffered write pump so a
// slow consumer can never stall a room's broadcast loop.
type client struct {
	logger *slog.Logger
	conn   *websocket.Conn
	user   *entity.User

	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(logger *slog.Logger, conn *websocket.Conn, user *entity.User) *client {
	return &client{
		logger: logger.With("component", "client", "userID", user.ID),
		conn:   conn,
		user:   user,

		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues an event for delivery. It never blocks: when the buffer is
// full the connection is dropped instead.
func (that *client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case that.send <- data:
		return nil
	case <-that.closed:
		return websocket.ErrCloseSent
	default:
		that.close()
		return errSendBufferFull
	}
}

func (that *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		that.conn.Close()
	}()

	for {
		select {
		case data := <-that.send:
			that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-that.closed:
			that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (that *client) close() {
	that.closeOnce.Do(func() {
		close(that.closed)
	})
}

package stomp

import (
	"bytes"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/api"
)

const writeWait = 10 * time.Second

// conn is one websocket connection. The read loop is the only reader and processes frames
// in order; the write loop is the only writer.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	// subs is guarded by the broker lock
	subs map[string]*subscription

	lastSeen  atomic.Int64
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, buffer int) *conn {
	c := &conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		subs: make(map[string]*subscription),
	}
	c.touch()
	return c
}

func (c *conn) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *conn) idleSince() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// enqueue hands an encoded frame to the write loop. A connection that cannot keep up is
// closed rather than allowed to stall the sender.
func (c *conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		api.SlowConsumers.Inc()
		zap.S().Warnw("closing slow consumer", "connectionId", c.id, "buffered", len(c.send))
		c.abort()
		return false
	}
}

func (c *conn) sendFrame(f *frame.Frame) bool {
	return c.enqueue(encode(f))
}

// finish asks the write loop to flush what is queued and then close
func (c *conn) finish() {
	select {
	case <-c.done:
	case c.send <- nil:
	default:
		c.abort()
	}
}

// abort closes the socket immediately, which also ends the read loop
func (c *conn) abort() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) writeLoop(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.abort()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if b == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func encode(f *frame.Frame) []byte {
	if len(f.Body) > 0 {
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}
	var buf bytes.Buffer
	_ = frame.NewWriter(&buf).Write(f)
	return buf.Bytes()
}

package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient handles the lifecycle of a single websocket connection:
// read/write pumps, ping keepalive, and reconnection with backoff.
type wsClient struct {
	name string
	url  string

	conn *websocket.Conn
	mu   sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
	maxBackoff   time.Duration

	sendCh chan []byte
	readCh chan []byte

	onReconnect func() // guarded by mu

	log *slog.Logger
}

func newWSClient(name, url string, log *slog.Logger) *wsClient {
	if log == nil {
		log = slog.Default()
	}
	return &wsClient{
		name:         name,
		url:          url,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		pingInterval: 20 * time.Second,
		maxBackoff:   time.Minute,
		sendCh:       make(chan []byte, 256),
		readCh:       make(chan []byte, 1024),
		log:          log.With("feed", name),
	}
}

// run dials and pumps until ctx is cancelled, redialing with
// exponential backoff on connection loss. readCh is closed on return.
func (c *wsClient) run(ctx context.Context, onConnect func() error) {
	defer close(c.readCh)

	backoff := time.Second
	for {
		if err := c.dial(); err != nil {
			c.log.Warn("dial failed", "err", err, "retry_in", backoff)
			c.reconnecting()
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = time.Second

		if onConnect != nil {
			if err := onConnect(); err != nil {
				c.log.Warn("subscribe failed", "err", err)
				c.closeConn()
				continue
			}
		}

		connCtx, cancel := context.WithCancel(ctx)
		go c.writePump(connCtx)
		c.readPump(connCtx)
		cancel()
		c.closeConn()

		select {
		case <-ctx.Done():
			return
		default:
			c.log.Warn("connection lost, reconnecting")
			c.reconnecting()
		}
	}
}

func (c *wsClient) setOnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

func (c *wsClient) reconnecting() {
	c.mu.Lock()
	fn := c.onReconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *wsClient) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected", "url", c.url)
	return nil
}

func (c *wsClient) closeConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *wsClient) send(msg []byte) {
	c.sendCh <- msg
}

func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case msg := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("write failed", "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetReadLimit(5 << 20)
	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		select {
		case c.readCh <- msg:
		case <-ctx.Done():
			return
		}
	}
}

package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/tws-session/internal/event"
)

// conn is one dialled connection and the goroutines serving it.
type conn struct {
	ws   *websocket.Conn
	done chan struct{}

	mu         sync.Mutex
	lastPingAt time.Time

	stopOnce sync.Once
	dropOnce sync.Once
}

// stop signals the connection's goroutines to exit.
func (c *conn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *conn) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

func (c *conn) sinceLastPing() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPingAt)
}

// Client is a websocket Transport. It can be reopened after Close.
type Client struct {
	cfg     ClientConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	handlerMu sync.RWMutex
	handler   event.Handler

	mu  sync.RWMutex
	cur *conn

	// Write serialization
	writeMu sync.Mutex
}

var _ Transport = (*Client)(nil)

// NewClient creates a websocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.MaxRequestsPerSec > 0 {
		limit = rate.Limit(cfg.MaxRequestsPerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		handler: func(event.Event) {},
	}
}

// SetHandler installs the inbound event consumer.
func (c *Client) SetHandler(h event.Handler) {
	if h == nil {
		h = func(event.Event) {}
	}
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

func (c *Client) deliver(ev event.Event) {
	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	h(ev)
}

// Open dials addr and sends the start_api hello.
func (c *Client) Open(ctx context.Context, addr string) error {
	c.mu.Lock()
	if c.cur != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return err
	}

	cn := &conn{ws: ws, done: make(chan struct{})}
	cn.touch()

	// Server sends ping, we respond with pong
	ws.SetPingHandler(func(data string) error {
		cn.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Server responds to our ping
	ws.SetPongHandler(func(string) error {
		cn.touch()
		return nil
	})

	c.mu.Lock()
	if c.cur != nil {
		c.mu.Unlock()
		ws.Close()
		return ErrAlreadyOpen
	}
	c.cur = cn
	c.mu.Unlock()

	if err := c.Send(ctx, Request{Type: ReqStartAPI, Payload: map[string]int64{"client_id": c.cfg.ClientID}}); err != nil {
		c.Close()
		return err
	}

	go c.readLoop(cn)
	go c.heartbeatLoop(cn)

	c.logger.Debug("websocket connected", "url", addr)
	return nil
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	cn := c.cur
	c.cur = nil
	c.mu.Unlock()

	if cn == nil {
		return nil
	}

	// Signal goroutines to stop
	cn.stop()

	c.writeMu.Lock()
	cn.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return cn.ws.Close()
}

// IsOpen reports whether a connection is up.
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur != nil
}

// Send encodes and writes one request, waiting for the rate limiter.
func (c *Client) Send(ctx context.Context, req Request) error {
	data, err := Encode(req)
	if err != nil {
		return err
	}

	c.mu.RLock()
	cn := c.cur
	c.mu.RUnlock()
	if cn == nil {
		return ErrNotConnected
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return cn.ws.WriteMessage(websocket.TextMessage, data)
}

// drop reports a connection lost without Close, at most once.
func (c *Client) drop(cn *conn, err error) {
	cn.dropOnce.Do(func() {
		c.mu.Lock()
		if c.cur == cn {
			c.cur = nil
		}
		c.mu.Unlock()
		cn.stop()
		cn.ws.Close()

		c.logger.Warn("websocket connection lost", "error", err)
		c.deliver(event.ConnectionClosed{Err: err})
	})
}

// readLoop decodes frames and delivers them in order.
func (c *Client) readLoop(cn *conn) {
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-cn.done:
				return
			default:
				c.drop(cn, err)
				return
			}
		}

		ev, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		select {
		case <-cn.done:
			return
		default:
		}
		c.deliver(ev)
	}
}

// heartbeatLoop pings the terminal and detects stale connections.
func (c *Client) heartbeatLoop(cn *conn) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cn.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := cn.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if since := cn.sinceLastPing(); since > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"since", since,
					"timeout", c.cfg.PingTimeout,
				)
				c.drop(cn, ErrStaleConnection)
				return
			}
		}
	}
}

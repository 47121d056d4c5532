package notify

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// WebsocketOptions configures a WebsocketChannel.
type WebsocketOptions struct {
	// URL is the ws:// or wss:// notification endpoint.
	URL string
	// Token is sent as a bearer token when non-empty.
	Token      string
	Header     http.Header
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *logrus.Entry
}

// WebsocketChannel receives notifications over a websocket and fans them
// out to subscribers. It reconnects with exponential backoff and emits a
// CategoryReconnected message to all subscribers of that category after
// every successful connect, including the first, so listeners that
// started before the handshake resync anything they missed.
type WebsocketChannel struct {
	opts   WebsocketOptions
	reg    *registry
	logger *logrus.Entry

	connected atomic.Bool
	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

func NewWebsocketChannel(opts WebsocketOptions) *WebsocketChannel {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(l)
	}
	return &WebsocketChannel{
		opts:   opts,
		reg:    newRegistry(),
		logger: logger.WithField("url", opts.URL),
	}
}

func (c *WebsocketChannel) Subscribe(category string) Subscription {
	return c.reg.subscribe(category)
}

// Connected reports whether the socket is currently open.
func (c *WebsocketChannel) Connected() bool {
	return c.connected.Load()
}

// Start begins connecting in the background. It returns immediately.
func (c *WebsocketChannel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Close stops the connection loop and ends every subscription.
func (c *WebsocketChannel) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.reg.closeAll()
	return nil
}

func (c *WebsocketChannel) header() http.Header {
	h := http.Header{}
	for k, v := range c.opts.Header {
		h[k] = append([]string(nil), v...)
	}
	if c.opts.Token != "" {
		h.Set("Authorization", "Bearer "+c.opts.Token)
	}
	return h
}

func (c *WebsocketChannel) run(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.opts.MinBackoff
	for {
		conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.header())
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fields := logrus.Fields{"error": err, "retry_in": backoff}
			if resp != nil {
				fields["status"] = resp.StatusCode
			}
			c.logger.WithFields(fields).Warn("Notification channel connect failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
			continue
		}

		backoff = c.opts.MinBackoff
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		c.logger.Info("Notification channel connected")

		c.reg.dispatch(Message{Category: CategoryReconnected, ServerTime: time.Now().Unix(), Payload: []byte("null")})

		c.readLoop(ctx, conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Notification channel disconnected, reconnecting")
	}
}

func (c *WebsocketChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Debug("Notification read failed")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable notification")
			continue
		}
		c.reg.dispatch(msg)
	}
}

var _ Channel = (*WebsocketChannel)(nil)

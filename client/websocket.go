package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// DeliverySignal mirrors the payload the server broadcasts each time a
// subscription matches an event.
type DeliverySignal struct {
	SubscriptionID    string `json:"subscription_id"`
	SubscriberSession string `json:"subscriber_session"`
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
}

// SignalHandler is called for each delivery signal received.
type SignalHandler func(sig DeliverySignal)

// WSClient maintains a websocket connection that streams delivery
// signals for one subscriber session ("*" observes all sessions).
type WSClient struct {
	baseURL   string
	apiKey    string
	session   string
	conn      *websocket.Conn
	handlers  []SignalHandler
	mu        sync.RWMutex
	done      chan struct{}
	reconnect bool
}

type WSOption func(*WSClient)

func WithWSAPIKey(key string) WSOption {
	return func(c *WSClient) {
		c.apiKey = key
	}
}

// WithWSSession sets the subscriber session to observe.
func WithWSSession(session string) WSOption {
	return func(c *WSClient) {
		c.session = session
	}
}

// WithAutoReconnect enables automatic reconnection on disconnect.
func WithAutoReconnect(enabled bool) WSOption {
	return func(c *WSClient) {
		c.reconnect = enabled
	}
}

func NewWSClient(baseURL string, opts ...WSOption) *WSClient {
	c := &WSClient{
		baseURL:   baseURL,
		session:   "*",
		done:      make(chan struct{}),
		reconnect: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSignal registers a handler invoked for every delivery signal.
func (c *WSClient) OnSignal(handler SignalHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

func (c *WSClient) Connect(ctx context.Context) error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	opts := &websocket.DialOptions{}
	if c.apiKey != "" {
		opts.HTTPHeader = make(map[string][]string)
		opts.HTTPHeader["Authorization"] = []string{"Bearer " + c.apiKey}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	go c.readLoop(ctx)

	return nil
}

func (c *WSClient) Close() error {
	close(c.done)
	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (c *WSClient) buildWSURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/sessions/" + c.session
	return u.String(), nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		var sig DeliverySignal
		err := wsjson.Read(ctx, c.conn, &sig)
		if err != nil {
			if c.reconnect {
				select {
				case <-c.done:
					return
				default:
					// Connect starts a fresh read loop on success.
					c.handleReconnect(ctx)
				}
			}
			return
		}

		c.dispatch(sig)
	}
}

func (c *WSClient) dispatch(sig DeliverySignal) {
	c.mu.RLock()
	handlers := make([]SignalHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(sig)
	}
}

func (c *WSClient) handleReconnect(ctx context.Context) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err := c.Connect(ctx); err == nil {
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Package realtime follows the server's change feed over a websocket and
// reconnects with backoff when the connection drops.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one change notification.
type Event struct {
	Type     string `json:"type"` // created, updated, deleted
	Resource string `json:"resource"`
	ID       string `json:"id,omitempty"`
}

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Options configure a Client.
type Options struct {
	URL string
	// Resource filters events; empty accepts all.
	Resource   string
	Header     http.Header
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
	Dialer     *websocket.Dialer
}

// Client is a reconnecting change-feed subscriber.
type Client struct {
	opts      Options
	logger    *zap.Logger
	connected atomic.Bool
}

// New validates opts and returns a client. http(s) URLs are mapped to ws(s).
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parse realtime url %q: invalid", opts.URL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("parse realtime url %q: unsupported scheme %q", opts.URL, u.Scheme)
	}
	opts.URL = u.String()
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: opts, logger: logger.With(zap.String("feed", opts.URL))}, nil
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run delivers events to onEvent until ctx is cancelled. Dropped connections
// are retried with exponential backoff; a connection that delivered at least
// one message resets the backoff.
func (c *Client) Run(ctx context.Context, onEvent func(Event)) error {
	failures := 0
	for {
		delivered, err := c.session(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			failures = 0
		}
		wait := Backoff(failures, c.opts.MinBackoff, c.opts.MaxBackoff)
		failures++
		c.logger.Debug("realtime disconnected", zap.Error(err), zap.Duration("retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) session(ctx context.Context, onEvent func(Event)) (bool, error) {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.connected.Store(true)
	defer c.connected.Store(false)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	c.logger.Info("realtime connected")
	delivered := false
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if isDecodeErr(err) {
				c.logger.Debug("skipping malformed event", zap.Error(err))
				continue
			}
			return delivered, err
		}
		delivered = true
		if c.opts.Resource != "" && ev.Resource != "" && ev.Resource != c.opts.Resource {
			continue
		}
		onEvent(ev)
	}
}

// isDecodeErr reports a payload that failed to decode on a healthy connection.
func isDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// Backoff returns base doubled per failure, capped at ceiling.
func Backoff(failures int, base, ceiling time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

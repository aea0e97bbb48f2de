package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"memorymap/internal/memory"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxBackoff = time.Minute

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) subscribeURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/subscribe"
	return u.String(), nil
}

// Subscribe streams the full memory set. Dropped connections are reported
// through onError and redialed with backoff until the returned func is
// called. No callback runs after that func returns; calling it again is a no-op.
// Callbacks must not call the returned func themselves.
func (c *Client) Subscribe(ctx context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error) {
	wsURL, err := c.subscribeURL()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu      sync.Mutex
		stopped bool
		conn    *websocket.Conn
	)
	deliver := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			fn()
		}
	}
	attach := func(cn *websocket.Conn) bool {
		mu.Lock()
		defer mu.Unlock()
		conn = cn
		return !stopped
	}
	reportErr := func(err error) {
		if onError != nil {
			deliver(func() { onError(err) })
		}
	}

	first := c.Backoff
	if first <= 0 {
		first = 500 * time.Millisecond
	}

	go func() {
		delay := first
		for {
			err := c.stream(ctx, wsURL, attach,
				func(ms []memory.Memory) {
					delay = first
					deliver(func() { onRecords(ms) })
				},
				func(msg string) { reportErr(fmt.Errorf("%w: %s", ErrServer, msg)) },
			)
			if ctx.Err() != nil {
				return
			}
			c.Log.Debug("subscription dropped", zap.Error(err), zap.Duration("retry_in", delay))
			reportErr(fmt.Errorf("%w: %v", ErrTransient, err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxBackoff)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			stopped = true
			if conn != nil {
				_ = conn.Close()
			}
			mu.Unlock()
		})
	}, nil
}

func (c *Client) stream(ctx context.Context, wsURL string, attach func(*websocket.Conn) bool, onRecords func([]memory.Memory), onServerError func(string)) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if !attach(conn) {
		return errors.New("unsubscribed")
	}

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		switch env.Type {
		case "memories":
			var ms []memory.Memory
			if len(env.Data) > 0 {
				if err := json.Unmarshal(env.Data, &ms); err != nil {
					return fmt.Errorf("decode memories: %w", err)
				}
			}
			if ms == nil {
				ms = []memory.Memory{}
			}
			onRecords(ms)
		case "error":
			var d struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(env.Data, &d)
			onServerError(d.Message)
		}
	}
}

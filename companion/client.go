// Package companion talks to the helper service that supplies the
// device's accessibility tree and screenshots. Requests are JSON-RPC
// 2.0 over a single websocket; readiness is probed over plain HTTP.
package companion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mobile-next/siminspect/utils"
)

// ErrServiceUnavailable wraps every transport failure, so callers can
// tell "companion not running" apart from a request the companion
// rejected.
var ErrServiceUnavailable = errors.New("companion service unavailable")

const (
	DefaultHost        = "localhost"
	DefaultPort        = 12004
	defaultCallTimeout = 5 * time.Second
	dumpTimeout        = 60 * time.Second
	readyPollInterval  = 500 * time.Millisecond
)

type Client struct {
	httpURL    string
	wsURL      string
	httpClient *http.Client
	requestID  atomic.Int64

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[int64]chan rpcResponse
	closeErr error
}

func NewClient(hostname string, port int) *Client {
	return &Client{
		httpURL: fmt.Sprintf("http://%s:%d", hostname, port),
		wsURL:   fmt.Sprintf("ws://%s:%d", hostname, port),
		httpClient: &http.Client{
			Timeout: dumpTimeout,
		},
		pending: make(map[int64]chan rpcResponse),
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL+"/rpc", nil)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", ErrServiceUnavailable, c.wsURL, err)
	}

	c.conn = conn
	c.closeErr = nil
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp rpcResponse
		if err := conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			c.closeErr = err
			if c.conn == conn {
				c.conn = nil
			}
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = make(map[int64]chan rpcResponse)
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// Close drops the websocket. Calls waiting for a response fail; the next
// call reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan rpcResponse)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check failed: %v", ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health check returned status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// WaitForReady polls the health endpoint until it answers or timeout
// elapses.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		err := c.HealthCheck(ctx)
		if err == nil {
			utils.Verbose("companion is ready at %s", c.httpURL)
			return nil
		}
		utils.Verbose("companion not ready yet: %v", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: timed out after %s waiting for %s", ErrServiceUnavailable, timeout, c.httpURL)
		case <-ticker.C:
		}
	}
}

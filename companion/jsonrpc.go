package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RemoteError is an error the companion reported for a request. It is
// not a transport failure.
type RemoteError struct {
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed with JSON-RPC error %d: %s", e.Method, e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.callWithTimeout(ctx, method, params, defaultCallTimeout)
}

func (c *Client) callWithTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	id := c.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: connection closed", ErrServiceUnavailable)
	}
	c.pending[id] = ch
	err := c.conn.WriteJSON(req)
	c.mu.Unlock()

	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("%w: failed to send %s: %v", ErrServiceUnavailable, method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: connection closed while waiting for %s", ErrServiceUnavailable, method)
		}
		if resp.Error != nil {
			return nil, &RemoteError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil

	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("%w: no response to %s: %v", ErrServiceUnavailable, method, ctx.Err())
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// RPCDialer speaks JSON-RPC over HTTP. It has no streams, so ledger-close
// events are unavailable on this transport.
type RPCDialer struct {
	Timeout time.Duration
	Client  *http.Client
}

func (d RPCDialer) Dial(ctx context.Context, address string, onStream StreamHandler) (Conn, error) {
	client := d.Client
	if client == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	conn := &rpcConn{url: address, http: client, done: make(chan struct{})}
	if _, err := conn.Request(ctx, "ping", nil); err != nil {
		return nil, err
	}
	return conn, nil
}

type rpcConn struct {
	url  string
	http *http.Client

	done      chan struct{}
	closeOnce sync.Once
}

type rpcRequest struct {
	Method string           `json:"method"`
	Params []map[string]any `json:"params"`
}

func (c *rpcConn) Request(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	select {
	case <-c.done:
		return nil, ErrConnectionClosed
	default:
	}
	if command == "subscribe" || command == "unsubscribe" {
		return nil, ErrStreamsUnsupported
	}
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(rpcRequest{Method: command, Params: []map[string]any{params}})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	return decodeResult(command, env)
}

func (c *rpcConn) Done() <-chan struct{} {
	return c.done
}

func (c *rpcConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

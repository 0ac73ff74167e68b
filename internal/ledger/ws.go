package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const wsReadLimit = 8 << 20

type WSDialer struct {
	PingInterval time.Duration
	Log          *zap.Logger
}

func (d WSDialer) Dial(ctx context.Context, address string, onStream StreamHandler) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsReadLimit)
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	session := &wsConn{
		address:  address,
		conn:     conn,
		log:      log,
		onStream: onStream,
		cancel:   cancel,
		pending:  make(map[uint64]chan envelope),
		done:     make(chan struct{}),
	}
	go session.readLoop(runCtx)
	if d.PingInterval > 0 {
		go session.pingLoop(runCtx, d.PingInterval)
	}
	return session, nil
}

type wsConn struct {
	address  string
	conn     *websocket.Conn
	log      *zap.Logger
	onStream StreamHandler
	cancel   context.CancelFunc
	nextID   atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan envelope
	err     error

	done      chan struct{}
	closeOnce sync.Once
	failOnce  sync.Once
}

func (c *wsConn) Request(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	id := c.nextID.Add(1)
	payload, err := encodeCommand(id, command, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan envelope, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, errors.Join(ErrConnectionClosed, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, err
	}
	select {
	case env := <-ch:
		return decodeResult(command, env)
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "disconnect")
		c.cancel()
		c.fail(ErrConnectionClosed)
	})
	return err
}

func (c *wsConn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.logReadLoopError(err)
			c.fail(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *wsConn) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("ledger ws decode error", zap.Error(err))
		return
	}
	if env.Type == "response" && env.ID != nil {
		c.mu.Lock()
		ch, ok := c.pending[*env.ID]
		c.mu.Unlock()
		if ok {
			ch <- env
		}
		return
	}
	if c.onStream != nil {
		c.onStream(data)
	}
}

func (c *wsConn) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := c.Request(pingCtx, "ping", nil)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.log.Warn("ledger ping failed", zap.String("endpoint", c.address), zap.Error(err))
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *wsConn) fail(err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.cancel()
		close(c.done)
	})
}

func (c *wsConn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil || errors.Is(c.err, ErrConnectionClosed) {
		return ErrConnectionClosed
	}
	return errors.Join(ErrConnectionClosed, c.err)
}

func (c *wsConn) logReadLoopError(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("ledger ws read loop ended", zap.String("endpoint", c.address), zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		c.log.Info("ledger ws read loop ended", zap.String("endpoint", c.address), zap.Error(err))
		return
	}
	c.log.Warn("ledger ws read loop ended", zap.String("endpoint", c.address), zap.Error(err))
}

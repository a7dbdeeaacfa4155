package rpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/EgorLis/wsrpc/internal/transport"
	"go.uber.org/zap"
)

// ========================= low-level =========================

func (c *Client) nextSeq() uint64 {
	return c.seq.Add(1)
}

// dialWithRetry — блокирующее подключение с ограниченным числом попыток.
func (c *Client) dialWithRetry(ctx context.Context, credential string) (transport.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		conn, err := c.dialer.Dial(ctx, credential)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.log.Info("dial failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == c.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last dial error: %v)", ctx.Err(), lastErr)
		case <-time.After(c.cfg.ConnectRetryDelay.D()):
		}
	}
	return nil, lastErr
}

// reconnect — фоновый реконнект: до ReconnectAttempts попыток, перед каждой
// пауза, которая удваивается от ReconnectDelayMin до ReconnectDelayMax.
func (c *Client) reconnect(ctx context.Context, credential string) (transport.Conn, error) {
	backoff := c.cfg.ReconnectDelayMin.D()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if !c.redialState(ctx, StateConnecting) {
			return nil, ctx.Err()
		}
		conn, err := c.dialer.Dial(ctx, credential)
		if err == nil {
			c.metrics.reconnect("ok")
			return conn, nil
		}
		c.redialState(ctx, StateReconnecting)
		lastErr = err
		c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Duration("wait", backoff), zap.Error(err))
		backoff = min(backoff*2, c.cfg.ReconnectDelayMax.D())
	}
	c.metrics.reconnect("exhausted")
	return nil, lastErr
}

// redialState переключает Reconnecting <-> Connecting вокруг попытки dial.
// false — Cancel уже перевёл клиента в Closed.
func (c *Client) redialState(ctx context.Context, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.setState(s)
	return true
}

// send кодирует конверт и пишет его в текущее соединение.
func (c *Client) send(env *message.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("rpclient: encode %s: %w", env.Command, err)
	}

	c.mu.Lock()
	conn, st := c.conn, c.state
	c.mu.Unlock()
	if st != StateConnected || conn == nil {
		return ErrNotConnected
	}

	if c.OnSend != nil {
		c.OnSend(env)
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConnectionLost, env.Command, err)
	}
	return nil
}

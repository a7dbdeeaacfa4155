package rpclient

import (
	"context"
	"fmt"

	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/EgorLis/wsrpc/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// readLoop — единственный читатель соединения. Живёт, пока не вызван Cancel,
// не исчерпаны попытки реконнекта или соединение не упало при выключенном
// автореконнекте.
func (c *Client) readLoop(ctx context.Context, stop context.CancelFunc, conn transport.Conn, credential, session string) {
	log := c.log.With(zap.String("session", session))
	for {
		err := c.readFrames(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		// соединение упало само
		c.mu.Lock()
		if ctx.Err() != nil || c.conn != conn {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		auto := c.cfg.AutoReconnect
		if auto {
			c.setState(StateReconnecting)
		} else {
			c.setState(StateDisconnected)
			c.cancelRun = nil
			c.up = false
		}
		calls := c.pending.drain()
		c.mu.Unlock()

		lost := fmt.Errorf("%w: %w", ErrConnectionLost, err)
		n := c.pending.fail(calls, lost)
		log.Warn("connection lost", zap.Error(err), zap.Int("failed_calls", n), zap.Bool("reconnect", auto))
		c.emitError(lost)

		if !auto {
			stop()
			c.emit(c.OnDisconnected)
			return
		}

		next, rerr := c.reconnect(ctx, credential)
		if rerr != nil {
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				return
			}
			c.setState(StateClosed)
			c.cancelRun = nil
			c.up = false
			c.mu.Unlock()
			stop()

			log.Error("giving up", zap.Error(rerr))
			c.emitError(fmt.Errorf("%w: %w", ErrReconnectFailed, rerr))
			c.emit(c.OnDisconnected)
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			_ = next.Close()
			return
		}
		c.conn = next
		c.setState(StateConnected)
		c.mu.Unlock()

		session = uuid.NewString()
		log = c.log.With(zap.String("session", session))
		log.Info("reconnected")
		if c.OnReconnected != nil {
			go c.OnReconnected()
		}
		conn = next
	}
}

// readFrames читает фреймы до ошибки соединения. Битые фреймы пропускаются.
func (c *Client) readFrames(conn transport.Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := c.codec.DecodeEnvelope(data)
		if err != nil {
			c.log.Warn("malformed frame dropped", zap.Int("size", len(data)), zap.Error(err))
			c.metrics.dropped("malformed")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env *message.Envelope) {
	switch env.Kind {
	case message.KindResponse:
		c.pending.Resolve(env)
	case message.KindPush, message.KindNotify:
		c.pushes.Dispatch(env)
	default:
		// запросы от сервера к клиенту не поддерживаются
		c.log.Debug("unexpected inbound kind dropped", zap.Stringer("kind", env.Kind), zap.String("command", env.Command))
		c.metrics.dropped("unexpected_kind")
	}
}

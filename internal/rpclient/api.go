package rpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/EgorLis/wsrpc/internal/message"
	"go.uber.org/zap"
)

// ========================= high-level API =========================

type callOptions struct {
	timeout time.Duration
	tag     string
}

// CallOption настраивает один запрос.
type CallOption func(*callOptions)

// WithTimeout — таймаут ожидания ответа; перекрывает Config.RequestTimeout.
// 0 — ждать без ограничения.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithTag помечает запрос тегом: ответ с другим непустым тегом не примется.
func WithTag(tag string) CallOption {
	return func(o *callOptions) { o.tag = tag }
}

// Request отправляет запрос и ждёт ответ, декодированный в Res.
//
// Ошибки:
//   - ErrNotConnected, ErrRateLimited — до отправки, sequence не выделяется;
//   - *ServerError — сервер вернул ненулевой код;
//   - ErrTimeout, ErrConnectionLost, ErrCancelled, ErrDecode;
//   - ctx.Err(), если вызывающий сам перестал ждать.
func Request[Res any](ctx context.Context, c *Client, command string, req any, opts ...CallOption) (Res, error) {
	var res Res
	err := c.Call(ctx, command, req, &res, opts...)
	return res, err
}

// Call — нетипизированный вариант Request: ответ декодируется в out
// (указатель; nil — payload игнорируется).
func (c *Client) Call(ctx context.Context, command string, req any, out any, opts ...CallOption) error {
	o := callOptions{timeout: c.cfg.RequestTimeout.D()}
	for _, opt := range opts {
		opt(&o)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	payload, err := c.codec.EncodePayload(req)
	if err != nil {
		return fmt.Errorf("rpclient: encode %s: %w", command, err)
	}

	seq := c.nextSeq()
	var deadline time.Time
	if o.timeout > 0 {
		deadline = time.Now().Add(o.timeout)
	}
	// регистрируем до отправки, иначе быстрый ответ не найдёт адресата
	done, err := c.pending.Register(seq, command, o.tag, out, deadline)
	if err != nil {
		c.log.DPanic("sequence collision", zap.Uint64("seq", seq), zap.String("command", command))
		return err
	}

	err = c.send(&message.Envelope{
		Kind:     message.KindRequest,
		Command:  command,
		Sequence: seq,
		Tag:      o.tag,
		Payload:  payload,
	})
	if err != nil {
		if c.pending.Remove(seq) {
			return err
		}
		return <-done
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if c.pending.Remove(seq) {
			return ctx.Err()
		}
		return <-done
	}
}

// Notify отправляет сообщение без ожидания ответа. nil — кадр передан
// транспорту, не более.
func (c *Client) Notify(command string, payload any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return ErrRateLimited
	}
	raw, err := c.codec.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("rpclient: encode %s: %w", command, err)
	}
	return c.send(&message.Envelope{
		Kind:    message.KindNotify,
		Command: command,
		Payload: raw,
	})
}

// Handle регистрирует сырой обработчик push для command (перезаписывает прежний).
// Можно вызывать до и после Connect.
func (c *Client) Handle(command string, h PushHandler) {
	c.pushes.Subscribe(command, h)
}

// Off снимает обработчик push.
func (c *Client) Off(command string) {
	c.pushes.Unsubscribe(command)
}

// On регистрирует типизированный обработчик: payload декодируется в T.
func On[T any](c *Client, command string, fn func(T)) {
	c.pushes.Subscribe(command, func(env *message.Envelope) error {
		var v T
		if err := c.codec.DecodePayload(env.Payload, &v); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		fn(v)
		return nil
	})
}

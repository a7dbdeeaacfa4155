package rpclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EgorLis/wsrpc/internal/codec"
	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/EgorLis/wsrpc/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client — RPC поверх одного WebSocket-соединения.
//
// Колбэки On* нужно выставить до Connect. Они вызываются вне внутренних
// блокировок и могут вызывать методы клиента, в том числе Request:
// OnConnected — из Connect, когда чтение уже запущено, OnReconnected —
// из отдельной горутины, а не из читателя.
type Client struct {
	cfg     Config
	dialer  transport.Dialer
	codec   codec.Codec
	log     *zap.Logger
	metrics *Metrics
	limiter *rate.Limiter

	mu        sync.Mutex // state, conn, cancelRun, up
	state     State
	conn      transport.Conn
	cancelRun context.CancelFunc
	up        bool // была сессия, о конце которой ещё не сообщили OnDisconnected

	seq     atomic.Uint64
	pending *pendingTable
	pushes  *pushRegistry

	OnConnected    func()
	OnReconnected  func()
	OnDisconnected func()
	OnError        func(error)
	// OnSend видит каждый исходящий конверт перед записью в транспорт.
	OnSend func(*message.Envelope)
}

// Option настраивает клиента.
type Option func(*Client)

// WithLogger задаёт логгер; по умолчанию логи отключены.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics подключает Prometheus-метрики (см. NewMetrics).
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg Config, dialer transport.Dialer, cdc codec.Codec, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		codec:  cdc,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.SendRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(c.cfg.SendRate), c.cfg.SendBurst)
	}
	c.pending = newPendingTable(c.codec.DecodePayload, c.log, c.metrics)
	c.pushes = newPushRegistry(c.log, c.metrics)
	c.metrics.setState(StateDisconnected)
	return c
}

// NewWS собирает клиента с WebSocket-транспортом и кодеком из конфига.
func NewWS(cfg Config, opts ...Option) (*Client, error) {
	cdc, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	c := New(cfg, nil, cdc, opts...)
	c.dialer = &transport.WSDialer{
		URL:          cfg.URL,
		TokenHeader:  cfg.TokenHeader,
		TokenPrefix:  cfg.TokenPrefix,
		WriteTimeout: cfg.WriteTimeout.D(),
		PingInterval: cfg.PingInterval.D(),
		ReadLimit:    cfg.ReadLimit,
		Text:         cdc.Name() == "json",
		Logger:       c.log.Named("transport"),
	}
	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Pending — сколько запросов ждут ответа.
func (c *Client) Pending() int { return c.pending.Len() }

// setState — только под c.mu.
func (c *Client) setState(s State) {
	c.state = s
	c.metrics.setState(s)
}

// Connect подключается, делая до ConnectAttempts попыток с паузой
// ConnectRetryDelay. Допустим из Disconnected и Closed. При неудаче
// возвращает ошибку, обёрнутую в ErrConnectFailed.
func (c *Client) Connect(ctx context.Context, credential string) error {
	dialCtx, cancelDial := context.WithCancel(ctx)
	c.mu.Lock()
	if !c.state.canConnect() {
		st := c.state
		c.mu.Unlock()
		cancelDial()
		return fmt.Errorf("%w: %s", ErrInvalidState, st)
	}
	c.setState(StateConnecting)
	c.cancelRun = cancelDial
	c.mu.Unlock()

	conn, err := c.dialWithRetry(dialCtx, credential)
	cancelDial()
	if err != nil {
		c.mu.Lock()
		cancelled := c.state != StateConnecting
		if !cancelled {
			c.setState(StateDisconnected)
			c.cancelRun = nil
		}
		c.mu.Unlock()
		if cancelled {
			return ErrCancelled
		}
		err = fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, c.cfg.ConnectAttempts, err)
		c.emitError(err)
		return err
	}

	runCtx, stop := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state != StateConnecting {
		// Cancel пришёл, пока шёл dial
		c.mu.Unlock()
		stop()
		_ = conn.Close()
		return ErrCancelled
	}
	c.conn = conn
	c.cancelRun = stop
	c.up = true
	c.setState(StateConnected)
	c.mu.Unlock()

	session := uuid.NewString()
	c.log.Info("connected", zap.String("session", session))

	// читатель уже работает: OnConnected может сразу делать запросы
	go c.readLoop(runCtx, stop, conn, credential, session)
	go c.sweepLoop(runCtx)
	c.emit(c.OnConnected)
	return nil
}

// Cancel рвёт соединение и переводит клиента в Closed. Все ожидающие
// запросы получают ErrCancelled. full дополнительно снимает подписки на
// push и сбрасывает счётчик sequence.
func (c *Client) Cancel(full bool) {
	c.mu.Lock()
	prev, wasUp := c.state, c.up
	conn := c.conn
	c.conn = nil
	c.up = false
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.setState(StateClosed)
	calls := c.pending.drain()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	n := c.pending.fail(calls, ErrCancelled)
	if full {
		c.pushes.Clear()
		c.seq.Store(0)
	}
	c.log.Info("cancelled", zap.Stringer("from", prev), zap.Bool("full", full), zap.Int("failed_calls", n))

	if wasUp {
		c.emit(c.OnDisconnected)
	}
}

func (c *Client) sweepLoop(ctx context.Context) {
	t := time.NewTicker(c.cfg.SweepInterval.D())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.pending.Expire(now)
		}
	}
}

func (c *Client) emit(cb func()) {
	if cb != nil {
		cb()
	}
}

func (c *Client) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

package rpclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/EgorLis/wsrpc/internal/codec"
	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/EgorLis/wsrpc/internal/transport"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var (
	errConnClosed = errors.New("fake: connection closed")
	errRefused    = errors.New("fake: connection refused")
)

// fakeConn — in-memory соединение. Клиент читает из in и пишет в out,
// тест играет роль сервера с другой стороны.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(b []byte) error {
	select {
	case <-f.closed:
		return errConnClosed
	default:
	}
	select {
	case f.out <- b:
		return nil
	case <-f.closed:
		return errConnClosed
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// next — следующий кадр, отправленный клиентом.
func (f *fakeConn) next(t *testing.T) *message.Envelope {
	t.Helper()
	select {
	case b := <-f.out:
		env, err := codec.JSON{}.DecodeEnvelope(b)
		require.NoError(t, err)
		return env
	case <-time.After(waitFor):
		t.Fatal("no frame from client")
		return nil
	}
}

func (f *fakeConn) send(t *testing.T, env *message.Envelope) {
	t.Helper()
	b, err := codec.JSON{}.Encode(env)
	require.NoError(t, err)
	f.in <- b
}

func (f *fakeConn) reply(t *testing.T, req *message.Envelope, payload any) {
	t.Helper()
	raw, err := codec.JSON{}.EncodePayload(payload)
	require.NoError(t, err)
	f.send(t, &message.Envelope{Kind: message.KindResponse, Command: req.Command, Sequence: req.Sequence, Tag: req.Tag, Payload: raw})
}

func (f *fakeConn) push(t *testing.T, command string, payload any) {
	t.Helper()
	raw, err := codec.JSON{}.EncodePayload(payload)
	require.NoError(t, err)
	f.send(t, &message.Envelope{Kind: message.KindPush, Command: command, Payload: raw})
}

// fakeDialer отдаёт новые fakeConn; failNext/failAll имитируют отказ сервера.
type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failNext int
	failAll  bool
	conns    chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, credential string) (transport.Conn, error) {
	d.mu.Lock()
	d.attempts++
	fail := d.failAll || d.failNext > 0
	if d.failNext > 0 {
		d.failNext--
	}
	d.mu.Unlock()
	if fail {
		return nil, errRefused
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) set(fn func(d *fakeDialer)) {
	d.mu.Lock()
	fn(d)
	d.mu.Unlock()
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) conn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection dialed")
		return nil
	}
}

func testConfig() Config {
	return Config{
		ConnectRetryDelay: Duration(time.Millisecond),
		ReconnectDelayMin: Duration(5 * time.Millisecond),
		ReconnectDelayMax: Duration(20 * time.Millisecond),
		SweepInterval:     Duration(5 * time.Millisecond),
	}
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) (*Client, *fakeDialer) {
	t.Helper()
	d := newFakeDialer()
	c := New(cfg, d, codec.JSON{}, opts...)
	t.Cleanup(func() { c.Cancel(true) })
	return c, d
}

func connect(t *testing.T, c *Client, d *fakeDialer) *fakeConn {
	t.Helper()
	require.NoError(t, c.Connect(context.Background(), "token"))
	return d.conn(t)
}

func waitPending(t *testing.T, c *Client, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Pending() == n }, waitFor, time.Millisecond)
}

type callResult[T any] struct {
	v   T
	err error
}

func goRequest[T any](ctx context.Context, c *Client, command string, req any, opts ...CallOption) <-chan callResult[T] {
	ch := make(chan callResult[T], 1)
	go func() {
		v, err := Request[T](ctx, c, command, req, opts...)
		ch <- callResult[T]{v, err}
	}()
	return ch
}

func await[T any](t *testing.T, ch <-chan callResult[T]) callResult[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("call did not complete")
		return callResult[T]{}
	}
}

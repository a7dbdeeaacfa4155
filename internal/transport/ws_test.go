package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer отвечает тем же фреймом и запоминает заголовок авторизации.
func echoServer(t *testing.T, gotToken chan<- string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotToken != nil {
			gotToken <- r.Header.Get("Authorization") + "|" + r.URL.Query().Get("t")
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// reader читает conn в фоне, как это делает read loop клиента: pong-и
// обрабатываются только внутри ReadMessage.
func reader(conn Conn) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 16)
	errs := make(chan error, 1)
	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			frames <- data
		}
	}()
	return frames, errs
}

func TestWSDialerEcho(t *testing.T) {
	tokens := make(chan string, 1)
	srv := echoServer(t, tokens)

	d := &WSDialer{URL: wsURL(srv), TokenHeader: "Authorization", TokenPrefix: "Bearer ", PingInterval: 20 * time.Millisecond}
	conn, err := d.Dial(context.Background(), "secret")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "Bearer secret|", <-tokens)
	frames, errs := reader(conn)

	require.NoError(t, conn.WriteMessage([]byte{1, 2, 3}))
	select {
	case got := <-frames:
		assert.Equal(t, []byte{1, 2, 3}, got)
	case err := <-errs:
		t.Fatal(err)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	// простой дольше PongWait (3*PingInterval): дедлайн продлевают pong-и
	select {
	case err := <-errs:
		t.Fatalf("idle connection dropped: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, conn.WriteMessage([]byte("again")))
	select {
	case got := <-frames:
		assert.Equal(t, "again", string(got))
	case err := <-errs:
		t.Fatal(err)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestWSDeadlineWithoutPongs(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		// сервер молчит: пинги читает, но не отвечает
		ws.SetPingHandler(func(string) error { return nil })
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	d := &WSDialer{URL: wsURL(srv), PingInterval: 10 * time.Millisecond, PongWait: 50 * time.Millisecond}
	conn, err := d.Dial(context.Background(), "")
	require.NoError(t, err)
	defer conn.Close()

	_, errs := reader(conn)
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read deadline did not fire without pongs")
	}
}

func TestWSDialerTokenInURL(t *testing.T) {
	tokens := make(chan string, 1)
	srv := echoServer(t, tokens)

	d := &WSDialer{URL: wsURL(srv) + "/?t={token}", Text: true}
	conn, err := d.Dial(context.Background(), "abc")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "|abc", <-tokens)
}

func TestWSCloseUnblocksRead(t *testing.T) {
	srv := echoServer(t, nil)
	conn, err := (&WSDialer{URL: wsURL(srv)}).Dial(context.Background(), "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage()
		done <- err
	}()

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage still blocked after Close")
	}
}

func TestWSDialFailure(t *testing.T) {
	_, err := (&WSDialer{URL: "ws://127.0.0.1:1/"}).Dial(context.Background(), "")
	assert.Error(t, err)

	_, err = (&WSDialer{}).Dial(context.Background(), "")
	assert.Error(t, err)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 64 << 20
)

// WSDialer открывает WebSocket-соединения.
//
// URL задаёт адрес целиком (ws://host:port/path или wss://...). Если TokenHeader
// не пуст, credential уходит в этом заголовке; иначе, если URL содержит
// "{token}", токен подставляется туда.
type WSDialer struct {
	URL         string
	TokenHeader string
	TokenPrefix string // например "Bearer "

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	// PingInterval > 0 включает WS ping; дедлайн чтения продлевается
	// на PongWait при каждом pong. PongWait по умолчанию — 3*PingInterval.
	PingInterval time.Duration
	PongWait     time.Duration
	// Text отправляет текстовые фреймы вместо бинарных (для JSON-кодека).
	Text bool

	Logger *zap.Logger
}

func (d *WSDialer) url(credential string) string {
	if strings.Contains(d.URL, "{token}") {
		return strings.ReplaceAll(d.URL, "{token}", credential)
	}
	return d.URL
}

func (d *WSDialer) Dial(ctx context.Context, credential string) (Conn, error) {
	if d.URL == "" {
		return nil, errors.New("transport: empty url")
	}
	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: hs,
	}
	header := http.Header{}
	if d.TokenHeader != "" && credential != "" {
		header.Set(d.TokenHeader, d.TokenPrefix+credential)
	}

	ws, resp, err := dialer.DialContext(ctx, d.url(credential), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (http %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", d.URL, err)
	}
	return newWSConn(ws, d), nil
}

// wsConn — соединение поверх *websocket.Conn.
type wsConn struct {
	ws           *websocket.Conn
	log          *zap.Logger
	writeTimeout time.Duration
	msgType      int

	wmu       sync.Mutex // сериализует запись в websocket (данные и ping)
	pingStop  chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, d *WSDialer) *wsConn {
	c := &wsConn{
		ws:           ws,
		log:          d.Logger,
		writeTimeout: d.WriteTimeout,
		msgType:      websocket.BinaryMessage,
		pingStop:     make(chan struct{}),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	if d.Text {
		c.msgType = websocket.TextMessage
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)

	if d.PingInterval > 0 {
		wait := d.PongWait
		if wait <= 0 {
			wait = 3 * d.PingInterval
		}
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
		go c.pingLoop(d.PingInterval)
	}
	return c
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.BinaryMessage || typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(c.msgType, data)
}

// Close шлёт close-фрейм и закрывает сокет; повторные вызовы ничего не делают.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.pingStop)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) pingLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.pingStop:
			return
		case <-t.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
			c.wmu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

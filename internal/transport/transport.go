// Package transport — байтовый канал под RPC-движком.
//
// Движку нужно немного: установить соединение, читать фреймы по одному,
// писать фреймы из разных горутин и закрыть. Конкретная реализация —
// WebSocket на gorilla/websocket (см. WSDialer); в тестах её подменяют
// in-memory вариантом.
package transport

import "context"

// Conn — одно установленное соединение.
//
// ReadMessage вызывается только из одной горутины (read loop) и блокируется
// до прихода фрейма; ошибка означает, что соединение закрыто.
// WriteMessage безопасен для конкурентного вызова.
// Close идемпотентен и разблокирует ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer открывает соединение. credential — непрозрачный токен, способ его
// передачи (заголовок, query) определяет реализация.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// DialerFunc позволяет использовать функцию как Dialer.
type DialerFunc func(ctx context.Context, credential string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, credential string) (Conn, error) {
	return f(ctx, credential)
}

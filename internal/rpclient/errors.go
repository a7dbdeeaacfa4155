package rpclient

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("rpclient: not connected")
	ErrInvalidState      = errors.New("rpclient: invalid state for connect")
	ErrConnectFailed     = errors.New("rpclient: connect failed")
	ErrReconnectFailed   = errors.New("rpclient: reconnect attempts exhausted")
	ErrConnectionLost    = errors.New("rpclient: connection lost")
	ErrCancelled         = errors.New("rpclient: cancelled")
	ErrTimeout           = errors.New("rpclient: timeout waiting for response")
	ErrDuplicateSequence = errors.New("rpclient: duplicate sequence")
	ErrRateLimited       = errors.New("rpclient: rate limit exceeded")
	ErrDecode            = errors.New("rpclient: cannot decode payload")
)

// ServerError — ошибка приложения: сервер ответил с ненулевым кодом.
type ServerError struct {
	Command string
	Code    int32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("rpclient: %s failed: code %d: %s", e.Command, e.Code, e.Message)
}

// ErrorCode достаёт код ошибки приложения; ok == false, если err не ServerError.
func ErrorCode(err error) (code int32, ok bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

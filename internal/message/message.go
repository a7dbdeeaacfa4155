// Package message описывает конверт (Envelope) — единицу обмена по проводу.
//
// Конверт сериализуется пакетом codec и передаётся одним WebSocket-фреймом.
// Payload внутри конверта остаётся непрозрачным: его разбирает вызывающая
// сторона по ожидаемому типу.
package message

import "fmt"

// Kind — тип сообщения.
type Kind uint8

const (
	KindRequest  Kind = 1 // клиент → сервер, ждёт Response с тем же Sequence
	KindResponse Kind = 2 // сервер → клиент, ответ на Request
	KindNotify   Kind = 3 // fire-and-forget, без Sequence
	KindPush     Kind = 4 // сервер → клиент, событие без запроса
)

var kindNames = map[Kind]string{
	KindRequest:  "request",
	KindResponse: "response",
	KindNotify:   "notify",
	KindPush:     "push",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid сообщает, известен ли тип.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("message: unknown kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kk, s := range kindNames {
		if s == string(b) {
			*k = kk
			return nil
		}
	}
	return fmt.Errorf("message: unknown kind %q", b)
}

// Envelope — одно сообщение на проводе.
//
//   - Request:  Command, Sequence (>0), опционально Tag, Payload — аргументы.
//   - Response: Sequence запроса, Payload — результат; ErrorCode != 0 — ошибка приложения.
//   - Notify/Push: Command и Payload, Sequence == 0.
type Envelope struct {
	Kind         Kind
	Command      string // "Controller.method"
	Sequence     uint64
	Tag          string
	Payload      []byte
	ErrorCode    int32
	ErrorMessage string
}

// Validate проверяет инварианты конверта, полученного с провода.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindRequest:
		if e.Sequence == 0 {
			return fmt.Errorf("message: %s without sequence", e.Kind)
		}
		if e.Command == "" {
			return fmt.Errorf("message: %s without command", e.Kind)
		}
	case KindResponse:
		if e.Sequence == 0 {
			return fmt.Errorf("message: %s without sequence", e.Kind)
		}
	case KindNotify, KindPush:
		if e.Command == "" {
			return fmt.Errorf("message: %s without command", e.Kind)
		}
		if e.Sequence != 0 {
			return fmt.Errorf("message: %s %q carries sequence %d", e.Kind, e.Command, e.Sequence)
		}
	default:
		return fmt.Errorf("message: unknown kind %d", uint8(e.Kind))
	}
	return nil
}

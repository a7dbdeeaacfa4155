// Package codec превращает message.Envelope в байты фрейма и обратно,
// а также кодирует/декодирует полезную нагрузку по типу, который
// указывает вызывающий.
//
// Реализации:
//   - Proto — конверт в формате protobuf wire (поля 1..7), payload — proto.Message;
//   - JSON  — конверт и payload в JSON, payload встраивается как объект;
//   - CBOR  — детерминированный CBOR с целочисленными ключами.
//
// Во всех кодеках DecodePayload в *[]byte отдаёт сырые байты без разбора,
// а пустой payload оставляет цель нетронутой.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/EgorLis/wsrpc/internal/message"
)

// Codec — сериализатор конвертов и полезной нагрузки.
type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	DecodeEnvelope(data []byte) (*message.Envelope, error)
	EncodePayload(v any) ([]byte, error)
	DecodePayload(raw []byte, v any) error
	Name() string
}

// ErrUnsupportedType — значение нельзя закодировать выбранным кодеком.
var ErrUnsupportedType = errors.New("codec: unsupported payload type")

// ByName возвращает кодек по имени из конфига. Пустое имя — protobuf.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "proto", "protobuf":
		return Proto{}, nil
	case "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// rawPayload обрабатывает общие для всех кодеков случаи декодирования:
// nil-цель, пустой payload и *[]byte. handled == true — дальше разбирать не нужно.
func rawPayload(raw []byte, v any) (handled bool) {
	if v == nil || len(raw) == 0 {
		return true
	}
	if p, ok := v.(*[]byte); ok {
		*p = append((*p)[:0], raw...)
		return true
	}
	return false
}

func decoded(env *message.Envelope) (*message.Envelope, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

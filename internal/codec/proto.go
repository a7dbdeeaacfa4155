package codec

import (
	"bytes"
	"fmt"
	"math"
	"reflect"

	"github.com/EgorLis/wsrpc/internal/message"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Номера полей конверта. Совместимо с
//
//	message Envelope {
//	  uint32 kind = 1; string command = 2; uint64 seq = 3; string tag = 4;
//	  bytes payload = 5; sint32 error_code = 6; string error_message = 7;
//	}
const (
	fieldKind         protowire.Number = 1
	fieldCommand      protowire.Number = 2
	fieldSequence     protowire.Number = 3
	fieldTag          protowire.Number = 4
	fieldPayload      protowire.Number = 5
	fieldErrorCode    protowire.Number = 6
	fieldErrorMessage protowire.Number = 7
)

// Proto — кодек protobuf. Payload должен реализовывать proto.Message.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Encode(env *message.Envelope) ([]byte, error) {
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("codec: unknown kind %d", uint8(env.Kind))
	}
	b := make([]byte, 0, 24+len(env.Command)+len(env.Tag)+len(env.Payload)+len(env.ErrorMessage))
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.Kind))
	if env.Command != "" {
		b = protowire.AppendTag(b, fieldCommand, protowire.BytesType)
		b = protowire.AppendString(b, env.Command)
	}
	if env.Sequence != 0 {
		b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, env.Sequence)
	}
	if env.Tag != "" {
		b = protowire.AppendTag(b, fieldTag, protowire.BytesType)
		b = protowire.AppendString(b, env.Tag)
	}
	if len(env.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, env.Payload)
	}
	if env.ErrorCode != 0 {
		b = protowire.AppendTag(b, fieldErrorCode, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(env.ErrorCode)))
	}
	if env.ErrorMessage != "" {
		b = protowire.AppendTag(b, fieldErrorMessage, protowire.BytesType)
		b = protowire.AppendString(b, env.ErrorMessage)
	}
	return b, nil
}

func (Proto) DecodeEnvelope(data []byte) (*message.Envelope, error) {
	env := &message.Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("codec: envelope tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			if n >= 0 && v > math.MaxUint8 {
				return nil, fmt.Errorf("codec: envelope kind %d out of range", v)
			}
			env.Kind = message.Kind(v)
		case num == fieldSequence && typ == protowire.VarintType:
			env.Sequence, n = protowire.ConsumeVarint(data)
		case num == fieldErrorCode && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			code := protowire.DecodeZigZag(v)
			if n >= 0 && (code > math.MaxInt32 || code < math.MinInt32) {
				return nil, fmt.Errorf("codec: envelope error code %d out of range", code)
			}
			env.ErrorCode = int32(code)
		case num == fieldCommand && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			env.Command = string(v)
		case num == fieldTag && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			env.Tag = string(v)
		case num == fieldErrorMessage && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			env.ErrorMessage = string(v)
		case num == fieldPayload && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			env.Payload = bytes.Clone(v)
		default:
			// неизвестные поля пропускаем — новые версии сервера
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, fmt.Errorf("codec: envelope field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return decoded(env)
}

func (Proto) EncodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case proto.Message:
		return proto.Marshal(p)
	default:
		return nil, fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupportedType, v)
	}
}

func (Proto) DecodePayload(raw []byte, v any) error {
	if rawPayload(raw, v) {
		return nil
	}
	m, ok := v.(proto.Message)
	if !ok {
		// **T, где *T — proto.Message: Request[*pb.Reply] декодирует сюда
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Pointer {
			if rv.Elem().IsNil() {
				rv.Elem().Set(reflect.New(rv.Elem().Type().Elem()))
			}
			m, ok = rv.Elem().Interface().(proto.Message)
		}
	}
	if !ok {
		return fmt.Errorf("%w: %T is not a proto.Message", ErrUnsupportedType, v)
	}
	return proto.Unmarshal(raw, m)
}

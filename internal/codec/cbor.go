package codec

import (
	"fmt"
	"reflect"

	"github.com/EgorLis/wsrpc/internal/message"
	"github.com/fxamacker/cbor/v2"
)

// детерминированное кодирование: одинаковые данные — одинаковые байты
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: cbor encoder: " + err.Error())
	}
	// map[string]any вместо map[any]any для целей типа any
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: cbor decoder: " + err.Error())
	}
}

type cborEnvelope struct {
	Kind         uint8           `cbor:"1,keyasint"`
	Command      string          `cbor:"2,keyasint,omitempty"`
	Sequence     uint64          `cbor:"3,keyasint,omitempty"`
	Tag          string          `cbor:"4,keyasint,omitempty"`
	Payload      cbor.RawMessage `cbor:"5,keyasint,omitempty"`
	ErrorCode    int32           `cbor:"6,keyasint,omitempty"`
	ErrorMessage string          `cbor:"7,keyasint,omitempty"`
}

// CBOR — компактный бинарный кодек для обычных Go-структур.
type CBOR struct{}

func (CBOR) Name() string { return "cbor" }

func (CBOR) Encode(env *message.Envelope) ([]byte, error) {
	return cborEnc.Marshal(&cborEnvelope{
		Kind:         uint8(env.Kind),
		Command:      env.Command,
		Sequence:     env.Sequence,
		Tag:          env.Tag,
		Payload:      env.Payload,
		ErrorCode:    env.ErrorCode,
		ErrorMessage: env.ErrorMessage,
	})
}

func (CBOR) DecodeEnvelope(data []byte) (*message.Envelope, error) {
	var w cborEnvelope
	if err := cborDec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: cbor envelope: %w", err)
	}
	return decoded(&message.Envelope{
		Kind:         message.Kind(w.Kind),
		Command:      w.Command,
		Sequence:     w.Sequence,
		Tag:          w.Tag,
		Payload:      []byte(w.Payload),
		ErrorCode:    w.ErrorCode,
		ErrorMessage: w.ErrorMessage,
	})
}

func (CBOR) EncodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return cborEnc.Marshal(v)
}

func (CBOR) DecodePayload(raw []byte, v any) error {
	if rawPayload(raw, v) {
		return nil
	}
	return cborDec.Unmarshal(raw, v)
}

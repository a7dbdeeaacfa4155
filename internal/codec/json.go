package codec

import (
	"encoding/json"
	"fmt"

	"github.com/EgorLis/wsrpc/internal/message"
)

type jsonEnvelope struct {
	Kind         message.Kind    `json:"kind"`
	Command      string          `json:"cmd,omitempty"`
	Sequence     uint64          `json:"seq,omitempty"`
	Tag          string          `json:"tag,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorCode    int32           `json:"code,omitempty"`
	ErrorMessage string          `json:"msg,omitempty"`
}

// JSON — текстовый кодек: удобно отлаживать, payload виден как есть.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(&jsonEnvelope{
		Kind:         env.Kind,
		Command:      env.Command,
		Sequence:     env.Sequence,
		Tag:          env.Tag,
		Payload:      env.Payload,
		ErrorCode:    env.ErrorCode,
		ErrorMessage: env.ErrorMessage,
	})
}

func (JSON) DecodeEnvelope(data []byte) (*message.Envelope, error) {
	var w jsonEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: json envelope: %w", err)
	}
	return decoded(&message.Envelope{
		Kind:         w.Kind,
		Command:      w.Command,
		Sequence:     w.Sequence,
		Tag:          w.Tag,
		Payload:      w.Payload,
		ErrorCode:    w.ErrorCode,
		ErrorMessage: w.ErrorMessage,
	})
}

func (JSON) EncodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (JSON) DecodePayload(raw []byte, v any) error {
	if rawPayload(raw, v) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

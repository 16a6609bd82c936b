package bus

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a payload for an envelope.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// Decode deserializes an envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var v T
	if err := msgpack.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return v, nil
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

func unmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := msgpack.Unmarshal(data, &env)
	return env, err
}

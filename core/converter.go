package core

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// Converter turns a collaborator's raw payload into the typed response value.
// It is called at most once per request.
type Converter[T any] interface {
	Convert(raw any) (T, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc[T any] func(raw any) (T, error)

func (f ConverterFunc[T]) Convert(raw any) (T, error) { return f(raw) }

// Payload is implemented by collaborator results that carry an encoded body.
type Payload interface {
	Bytes() []byte
}

// EncodedPayload is implemented by results whose body is produced on demand
// and may fail to encode. PayloadBytes prefers it over Payload.
type EncodedPayload interface {
	Encode() ([]byte, error)
}

// PayloadBytes extracts bytes from the raw payload shapes converters accept:
// []byte, string, json.RawMessage, io.Reader, EncodedPayload and Payload.
func PayloadBytes(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload is nil", ErrConversion)
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	case EncodedPayload:
		data, err := v.Encode()
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", ErrConversion, err)
		}
		return data, nil
	case Payload:
		return v.Bytes(), nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("%w: read payload: %v", ErrConversion, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported payload type %T", ErrConversion, raw)
	}
}

// JSONConverter decodes JSON payloads into T.
type JSONConverter[T any] struct{}

func (JSONConverter[T]) Convert(raw any) (T, error) {
	var out T
	data, err := PayloadBytes(raw)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, fmt.Errorf("%w: data is empty", ErrConversion)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: json unmarshal failed: %v", ErrConversion, err)
	}
	return out, nil
}

// YAMLConverter decodes YAML (or JSON) payloads into T using the JSON field tags of T.
type YAMLConverter[T any] struct{}

func (YAMLConverter[T]) Convert(raw any) (T, error) {
	var out T
	data, err := PayloadBytes(raw)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, fmt.Errorf("%w: data is empty", ErrConversion)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: yaml unmarshal failed: %v", ErrConversion, err)
	}
	return out, nil
}

// IdentityConverter type-asserts the raw payload to T.
type IdentityConverter[T any] struct{}

func (IdentityConverter[T]) Convert(raw any) (T, error) {
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: payload is %T, want %T", ErrConversion, raw, zero)
	}
	return v, nil
}

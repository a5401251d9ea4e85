package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type account struct {
	ID      string `json:"id"`
	Balance int    `json:"balance"`
}

type bodyPayload []byte

func (b bodyPayload) Bytes() []byte { return b }

type failingPayload struct{}

func (failingPayload) Bytes() []byte           { return nil }
func (failingPayload) Encode() ([]byte, error) { return nil, errors.New("unsupported type chan int") }

func TestJSONConverter(t *testing.T) {
	conv := JSONConverter[account]{}
	want := account{ID: "a1", Balance: 30}

	inputs := map[string]any{
		"bytes":   []byte(`{"id":"a1","balance":30}`),
		"string":  `{"id":"a1","balance":30}`,
		"raw":     json.RawMessage(`{"id":"a1","balance":30}`),
		"reader":  strings.NewReader(`{"id":"a1","balance":30}`),
		"payload": bodyPayload(`{"id":"a1","balance":30}`),
	}
	for name, raw := range inputs {
		got, err := conv.Convert(raw)
		if err != nil {
			t.Errorf("%s: Convert() error = %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%s: Convert() = %+v, want %+v", name, got, want)
		}
	}
}

func TestJSONConverter_Errors(t *testing.T) {
	conv := JSONConverter[account]{}
	for name, raw := range map[string]any{
		"nil":         nil,
		"empty":       []byte{},
		"malformed":   `{"id":`,
		"unsupported": 42,
	} {
		if _, err := conv.Convert(raw); !errors.Is(err, ErrConversion) {
			t.Errorf("%s: Convert() error = %v, want ErrConversion", name, err)
		}
	}
}

// TestPayloadBytes_EncodeErrorSurfaces verifies an encoding failure reaches the
// converter error instead of looking like an empty body
func TestPayloadBytes_EncodeErrorSurfaces(t *testing.T) {
	_, err := JSONConverter[account]{}.Convert(failingPayload{})
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Convert() error = %v, want ErrConversion", err)
	}
	if !strings.Contains(err.Error(), "unsupported type chan int") {
		t.Errorf("Convert() error = %v, want the encoding cause", err)
	}
}

func TestYAMLConverter(t *testing.T) {
	got, err := YAMLConverter[account]{}.Convert("id: a2\nbalance: 7\n")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if got != (account{ID: "a2", Balance: 7}) {
		t.Errorf("Convert() = %+v", got)
	}
	if _, err := (YAMLConverter[account]{}).Convert("id: [unclosed"); !errors.Is(err, ErrConversion) {
		t.Errorf("malformed yaml error = %v, want ErrConversion", err)
	}
}

func TestIdentityConverter(t *testing.T) {
	got, err := IdentityConverter[int]{}.Convert(7)
	if err != nil || got != 7 {
		t.Errorf("Convert(7) = %d, %v", got, err)
	}
	if _, err := (IdentityConverter[int]{}).Convert("7"); !errors.Is(err, ErrConversion) {
		t.Errorf("Convert(\"7\") error = %v, want ErrConversion", err)
	}
}

func TestConverterFunc(t *testing.T) {
	upper := ConverterFunc[string](func(raw any) (string, error) {
		b, err := PayloadBytes(raw)
		return strings.ToUpper(string(b)), err
	})
	got, err := upper.Convert("abc")
	if err != nil || got != "ABC" {
		t.Errorf("Convert() = %q, %v", got, err)
	}
}

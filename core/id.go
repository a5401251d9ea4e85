package core

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// RequestIDPrefix prefixes every request id ("req_01h2xcejqtf2nbrexx3vqjhp41").
const RequestIDPrefix = "req"

// NewRequestID returns a K-sortable, globally unique request id.
func NewRequestID() string {
	tid, err := typeid.Generate(RequestIDPrefix)
	if err != nil {
		panic(fmt.Sprintf("callrunner: invalid request id prefix %q: %v", RequestIDPrefix, err))
	}
	return tid.String()
}

// ParseRequestID validates s as a request id.
func ParseRequestID(s string) error {
	tid, err := typeid.Parse(s)
	if err != nil {
		return fmt.Errorf("callrunner: parse request id %q: %w", s, err)
	}
	if tid.Prefix() != RequestIDPrefix {
		return fmt.Errorf("callrunner: request id %q has prefix %q, want %q", s, tid.Prefix(), RequestIDPrefix)
	}
	return nil
}

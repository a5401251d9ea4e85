package core

import "fmt"

// Status is the terminal outcome of a dispatched request.
type Status int32

const (
	// StatusPending is reported until the response is completed.
	StatusPending Status = iota
	StatusSuccess
	StatusTimeout
	StatusBackendFailure
	StatusRejected
)

// AllStatuses lists the terminal statuses.
var AllStatuses = []Status{StatusSuccess, StatusTimeout, StatusBackendFailure, StatusRejected}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusBackendFailure:
		return "BACKEND_FAILURE"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// IsTerminal reports whether s is one of the four final outcomes.
func (s Status) IsTerminal() bool {
	return s >= StatusSuccess && s <= StatusRejected
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

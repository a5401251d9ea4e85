package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeOut is an immutable amount of a time unit, e.g. 15 seconds.
// The zero value means "not configured".
type TimeOut struct {
	Amount int64
	Unit   time.Duration
}

var unitSuffixes = []struct {
	unit   time.Duration
	suffix string
}{
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "us"},
	{time.Nanosecond, "ns"},
}

var unitNames = map[string]time.Duration{
	"ns": time.Nanosecond, "nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

// NewTimeOut validates amount and unit.
func NewTimeOut(amount int64, unit time.Duration) (TimeOut, error) {
	t := TimeOut{Amount: amount, Unit: unit}
	if err := t.Validate(); err != nil {
		return TimeOut{}, err
	}
	return t, nil
}

// Validate checks that the timeout is positive and fits in a time.Duration.
func (t TimeOut) Validate() error {
	switch {
	case t.Amount <= 0:
		return fmt.Errorf("%w: amount must be > 0, got %d", ErrInvalidTimeOut, t.Amount)
	case t.Unit <= 0:
		return fmt.Errorf("%w: unit must be positive, got %v", ErrInvalidTimeOut, t.Unit)
	case t.Amount > math.MaxInt64/int64(t.Unit):
		return fmt.Errorf("%w: %d x %v overflows a duration", ErrInvalidTimeOut, t.Amount, t.Unit)
	}
	return nil
}

// MustTimeOut is NewTimeOut that panics on invalid input.
func MustTimeOut(amount int64, unit time.Duration) TimeOut {
	t, err := NewTimeOut(amount, unit)
	if err != nil {
		panic(err)
	}
	return t
}

// Seconds returns a TimeOut of n seconds.
func Seconds(n int64) TimeOut { return MustTimeOut(n, time.Second) }

// Milliseconds returns a TimeOut of n milliseconds.
func Milliseconds(n int64) TimeOut { return MustTimeOut(n, time.Millisecond) }

// TimeOutOf converts a duration into a TimeOut expressed in the largest unit
// that divides it exactly.
func TimeOutOf(d time.Duration) (TimeOut, error) {
	if d <= 0 {
		return TimeOut{}, fmt.Errorf("%w: duration must be > 0, got %v", ErrInvalidTimeOut, d)
	}
	for _, u := range unitSuffixes {
		if d%u.unit == 0 {
			return TimeOut{Amount: int64(d / u.unit), Unit: u.unit}, nil
		}
	}
	return TimeOut{Amount: int64(d), Unit: time.Nanosecond}, nil
}

// ParseTimeOut accepts "15s", "250ms", "2m" as well as unit names such as
// "15 SECONDS" or "100 milliseconds".
func ParseTimeOut(s string) (TimeOut, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOut{}, fmt.Errorf("%w: empty string", ErrInvalidTimeOut)
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return TimeOut{}, fmt.Errorf("%w: %q has no amount", ErrInvalidTimeOut, s)
	}
	amount, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return TimeOut{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimeOut, s, err)
	}

	name := strings.ToLower(strings.TrimSpace(s[i:]))
	unit, ok := unitNames[name]
	if !ok {
		return TimeOut{}, fmt.Errorf("%w: %q has unknown unit %q", ErrInvalidTimeOut, s, name)
	}
	return NewTimeOut(amount, unit)
}

// Duration returns the timeout as a time.Duration.
func (t TimeOut) Duration() time.Duration {
	return time.Duration(t.Amount) * t.Unit
}

// IsZero reports whether the timeout is unset.
func (t TimeOut) IsZero() bool {
	return t.Amount == 0 && t.Unit == 0
}

// String renders the timeout in its own unit, e.g. "15s".
func (t TimeOut) String() string {
	if t.IsZero() {
		return "unset"
	}
	for _, u := range unitSuffixes {
		if t.Unit == u.unit {
			return strconv.FormatInt(t.Amount, 10) + u.suffix
		}
	}
	return t.Duration().String()
}

type timeOutObject struct {
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
}

// MarshalJSON encodes the timeout as its string form.
func (t TimeOut) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either "15s" or {"amount": 15, "unit": "seconds"}.
// sigs.k8s.io/yaml routes YAML documents through this method as well.
func (t *TimeOut) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*t = TimeOut{}
			return nil
		}
		parsed, err := ParseTimeOut(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}

	var obj timeOutObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimeOut, string(data))
	}
	unit, ok := unitNames[strings.ToLower(obj.Unit)]
	if !ok {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidTimeOut, obj.Unit)
	}
	parsed, err := NewTimeOut(obj.Amount, unit)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

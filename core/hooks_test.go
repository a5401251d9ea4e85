package core

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"
)

type recordingLogger struct {
	NoOpLogger
	debug, warn []string
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.debug = append(l.debug, msg) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.warn = append(l.warn, msg) }

func TestRateLimitHook(t *testing.T) {
	// Given: A limiter allowing a single burst for "billing"
	hook := RateLimitHook(map[string]*rate.Limiter{
		"billing": rate.NewLimiter(rate.Limit(0.001), 1),
	})
	billing := RequestInfo{Route: MustRouteKey("billing.charge")}
	other := RequestInfo{Route: MustRouteKey("crm.lookup")}

	// When and Then: The first billing call passes, the second is refused
	if _, err := hook(context.Background(), billing); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if _, err := hook(context.Background(), billing); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second call error = %v, want ErrRateLimited", err)
	}
	for range 3 {
		if _, err := hook(context.Background(), other); err != nil {
			t.Errorf("unlimited system error = %v", err)
		}
	}
}

func TestLoggingHook(t *testing.T) {
	logger := &recordingLogger{}
	hook := LoggingHook(logger)
	stat := NewRequestStatistic(nil)

	hook(context.Background(), Completion{Status: StatusSuccess, Statistic: stat})
	hook(context.Background(), Completion{Status: StatusTimeout, Err: ErrTimeout, Statistic: stat})

	if len(logger.debug) != 1 || logger.debug[0] != "request completed" {
		t.Errorf("debug = %v", logger.debug)
	}
	if len(logger.warn) != 1 || logger.warn[0] != "request failed" {
		t.Errorf("warn = %v", logger.warn)
	}
}

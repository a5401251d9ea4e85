package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
)

func TestLogrLogger(t *testing.T) {
	// Given: A logr sink capturing every line at verbosity 1
	var lines []string
	sink := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})
	logger := NewLogrLogger(sink)

	// When: Each level is used
	logger.Debug("debug line", F("k", 1))
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line", F("error", errors.New("boom")), F("pool", "p"))

	// Then: Warn is tagged and Error carries the extracted error
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"level"=1`) {
		t.Errorf("debug line = %s, want verbosity 1", lines[0])
	}
	if !strings.Contains(lines[2], `"severity"="warn"`) {
		t.Errorf("warn line = %s, want severity tag", lines[2])
	}
	if !strings.Contains(lines[3], `"error"="boom"`) || !strings.Contains(lines[3], `"pool"="p"`) {
		t.Errorf("error line = %s", lines[3])
	}
}

func TestLogrLogger_DebugFilteredByVerbosity(t *testing.T) {
	var lines []string
	logger := NewLogrLogger(funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{}))

	logger.Debug("hidden")
	logger.Info("shown")

	if len(lines) != 1 {
		t.Errorf("got %d lines, want 1: %v", len(lines), lines)
	}
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/Swind/go-call-runner/core"
)

const (
	DefaultListenAddr    = ":9090"
	DefaultPollInterval  = 5 * time.Second
	DefaultShutdownGrace = 30 * time.Second
	DefaultDatabaseRoute = "database.ping"
)

// Options contains the command-line configuration of the callrunner service.
type Options struct {
	ConfigFile string // YAML pools/systems document.
	Check      bool   // Validate the configuration, build it once and exit.

	//
	// Serving.
	//
	ListenAddr    string        // Address for /metrics, /healthz and /debug endpoints.
	PollInterval  time.Duration // Snapshot poller interval.
	ShutdownGrace time.Duration // How long Shutdown waits for in-flight calls.

	//
	// Probes.
	//
	Probes        map[string]string // route -> URL, called on /healthz.
	DatabaseURL   string            // Optional PostgreSQL connection string.
	DatabaseRoute string            // Route the database probe is dispatched on.

	//
	// Diagnostics.
	//
	LogLevel    string
	LogDevel    bool
	HistorySize int

	level zapcore.Level
}

// NewOptions returns Options initialized with default values.
func NewOptions() *Options {
	return &Options{
		ConfigFile:    "callrunner.yaml",
		ListenAddr:    DefaultListenAddr,
		PollInterval:  DefaultPollInterval,
		ShutdownGrace: DefaultShutdownGrace,
		Probes:        map[string]string{},
		DatabaseRoute: DefaultDatabaseRoute,
		LogLevel:      "info",
		HistorySize:   100,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	fs.StringVarP(&opts.ConfigFile, "config", "c", opts.ConfigFile,
		"Path to the pools and systems configuration document.")
	fs.BoolVar(&opts.Check, "check", opts.Check,
		"Validate the configuration, build the dispatcher once and exit.")
	fs.StringVar(&opts.ListenAddr, "listen", opts.ListenAddr,
		"Address serving /metrics, /healthz and /debug endpoints.")
	fs.DurationVar(&opts.PollInterval, "poll-interval", opts.PollInterval,
		"How often pool and dispatcher snapshots are exported.")
	fs.DurationVar(&opts.ShutdownGrace, "shutdown-grace", opts.ShutdownGrace,
		"How long shutdown waits for in-flight calls before aborting them.")
	fs.StringToStringVar(&opts.Probes, "probe", opts.Probes,
		`Repeatable. --probe <system.method>=<url>; each probe is an HTTP GET dispatched on /healthz.`)
	fs.StringVar(&opts.DatabaseURL, "database-url", opts.DatabaseURL,
		"PostgreSQL connection string; when set, /healthz also runs SELECT 1.")
	fs.StringVar(&opts.DatabaseRoute, "database-route", opts.DatabaseRoute,
		"Route the database probe is dispatched on.")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel,
		"Log level: debug, info, warn or error.")
	fs.BoolVar(&opts.LogDevel, "log-devel", opts.LogDevel,
		"Use human-readable development logging.")
	fs.IntVar(&opts.HistorySize, "history-size", opts.HistorySize,
		"Number of finished requests kept for /debug/requests.")
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	lvl, err := zapcore.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	opts.level = lvl
	return nil
}

// Validate checks the flag combination.
func (opts *Options) Validate() error {
	var errs []error
	if opts.ConfigFile == "" {
		errs = append(errs, errors.New("--config is required"))
	}
	if opts.PollInterval <= 0 {
		errs = append(errs, errors.New("--poll-interval must be > 0"))
	}
	if opts.ShutdownGrace <= 0 {
		errs = append(errs, errors.New("--shutdown-grace must be > 0"))
	}
	for route := range opts.Probes {
		if _, err := core.ParseRouteKey(route); err != nil {
			errs = append(errs, fmt.Errorf("--probe %s: %w", route, err))
		}
	}
	if opts.DatabaseURL != "" {
		if _, err := core.ParseRouteKey(opts.DatabaseRoute); err != nil {
			errs = append(errs, fmt.Errorf("--database-route: %w", err))
		}
	}
	return errors.Join(errs...)
}

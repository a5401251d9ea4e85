// Command callrunner loads a pools and systems document, builds a dispatcher
// and serves its metrics, health probes and debug snapshots until signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"github.com/jackc/pgx/v5/pgxpool"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"

	"github.com/Swind/go-call-runner/config"
	"github.com/Swind/go-call-runner/core"
	"github.com/Swind/go-call-runner/observability/otelhooks"
	obs "github.com/Swind/go-call-runner/observability/prometheus"
)

func main() {
	opts := NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "callrunner: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *Options) error {
	if err := opts.Complete(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	zl, err := newZapLogger(opts)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := core.NewLogrLogger(zapr.NewLogger(zl))

	doc, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return err
	}

	routes := core.NewRouteTable()
	if err := registerProbeRoutes(routes, opts); err != nil {
		return err
	}

	if opts.Check {
		d, err := doc.Build(config.BuildOptions{Logger: logger, Routes: routes})
		if err != nil {
			return err
		}
		_ = d.Shutdown(context.Background())
		fmt.Printf("configuration %s is valid: %d pools, %d routes\n",
			opts.ConfigFile, len(d.Registry().Pools()), len(d.Routes().Routes()))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter, err := obs.NewMetricsExporter("callrunner", reg, obs.ExporterOptions{})
	if err != nil {
		return err
	}
	poller, err := obs.NewSnapshotPoller(reg, opts.PollInterval)
	if err != nil {
		return err
	}

	tracing := otelhooks.NewTracing()
	d, err := doc.Build(config.BuildOptions{
		Logger:           logger,
		Metrics:          exporter,
		Routes:           routes,
		PreDispatchHooks: []core.PreDispatchHook{tracing.PreDispatch()},
		CompletionHooks: []core.CompletionHook{
			tracing.Completion(),
			otelhooks.Metrics(),
			core.LoggingHook(logger),
		},
		HistoryCapacity: opts.HistorySize,
	})
	if err != nil {
		return err
	}

	var dbPool *pgxpool.Pool
	if opts.DatabaseURL != "" {
		dbPool, err = pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			_ = d.Shutdown(context.Background())
			return fmt.Errorf("connect database: %w", err)
		}
		defer dbPool.Close()
	}

	probes, err := newProber(d, opts, dbPool, logger)
	if err != nil {
		_ = d.Shutdown(context.Background())
		return err
	}

	poller.AddDispatcher("callrunner", d)
	poller.AddRegistry(d.Registry())
	poller.Start(ctx)
	defer poller.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", probes.handleHealthz)
	mux.Handle("/debug/", debugHandler(d))
	server := &http.Server{Addr: opts.ListenAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving", core.F("addr", opts.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error("http server failed", core.F("error", runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownGrace)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return errors.Join(runErr, d.Shutdown(shutdownCtx))
}

func newZapLogger(opts *Options) (*uberzap.Logger, error) {
	cfg := uberzap.NewProductionConfig()
	if opts.LogDevel {
		cfg = uberzap.NewDevelopmentConfig()
	}
	cfg.Level = uberzap.NewAtomicLevelAt(opts.level)
	return cfg.Build()
}

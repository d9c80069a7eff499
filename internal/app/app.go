// Package app assembles the rewind simulator process: logging, metrics,
// tracing, the engine with its demo scene, the loop and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdnet "net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/config"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/entities"
	servernet "github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/tracing"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
	loggingSinks "github.com/aberter0x3f/clock-slowing-effect-sub000/logging/sinks"
)

const (
	serviceName     = "rewindsim"
	shutdownTimeout = 5 * time.Second
)

// Options carries process-level inputs that do not belong in the config file.
type Options struct {
	Version string
	// Output receives operator logs and console events. Defaults to stdout.
	Output io.Writer
	// Ready is called with the bound listen address once the server accepts
	// connections.
	Ready func(addr string)
}

// Run serves the simulator until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	logger := newLogger(out, cfg.Log)
	telemetryLogger := telemetry.WrapLogger(logger.WithField("component", serviceName))

	shutdownTracing, err := tracing.Setup(ctx, serviceName, opts.Version, cfg.TraceEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			telemetryLogger.Printf("failed to flush traces: %v", err)
		}
	}()

	router, err := newRouter(cfg, out, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(cctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	registry := prometheus.NewRegistry()
	counters := &logging.Metrics{}
	metrics := telemetry.Fanout(telemetry.WrapMetrics(counters), telemetry.NewPrometheus(registry, ""))

	engineOpts := append(cfg.EngineOptions(),
		rewind.WithPublisher(router),
		rewind.WithMetrics(metrics),
		rewind.WithLogger(telemetryLogger),
	)
	engine, err := rewind.NewEngine(engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to construct rewind engine: %w", err)
	}

	scene := entities.NewScene(engine)
	scene.Populate(cfg.Scenario)

	// The scene belongs to the loop goroutine; readers see the copy published
	// after each step.
	var sceneStats atomic.Pointer[entities.SceneStats]
	publishScene := func() {
		stats := scene.Stats()
		sceneStats.Store(&stats)
	}
	publishScene()

	hooks := sim.LoopHooks{
		AfterStep: func(sim.LoopStepResult) { publishScene() },
		OnQueueWarning: func(length int) {
			telemetryLogger.Printf("[backpressure] command queue length=%d", length)
		},
	}
	loop, err := sim.NewLoop(engine, scene, sim.NewTimeScale(cfg.TimeScale), cfg.LoopConfig(), hooks, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   metrics,
		Publisher: router,
		Clock:     logging.SystemClock{},
	})
	if err != nil {
		return fmt.Errorf("failed to construct simulation loop: %w", err)
	}

	handler := servernet.NewHTTPHandler(loop, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Gatherer:      registry,
		Scene:         func() any { return sceneStats.Load() },
		Metrics:       counters.Snapshot,
		Observability: cfg.Observability,
	})

	listener, err := stdnet.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: shutdownTimeout}
	telemetryLogger.Printf("server listening on %s", listener.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			loop.Run(stop)
			close(done)
		}()
		<-gctx.Done()
		close(stop)
		<-done
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if opts.Ready != nil {
		opts.Ready(listener.Addr().String())
	}

	err = g.Wait()
	telemetryLogger.Printf("stopped at tick %d; counters=%v", loop.Status().Tick, counters.Snapshot())
	return err
}

func newLogger(out io.Writer, cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: cfg.Color})
	}
	return logger
}

func newRouter(cfg config.Config, out io.Writer, fallback logging.Printer) (*logging.Router, error) {
	logConfig := cfg.LoggingConfig()
	sinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsole(out, logConfig.Console)},
	}
	if logConfig.HasSink("json") {
		jsonSink, err := loggingSinks.OpenJSONFile(logConfig.JSON.FilePath, logConfig.JSON.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to open json event log: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: jsonSink})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, fallback, sinks)
	if err != nil {
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	return router, nil
}

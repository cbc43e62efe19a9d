package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/anchordrift/internal/adapters/http/api"
	"github.com/okian/anchordrift/internal/adapters/http/stream"
	"github.com/okian/anchordrift/internal/adapters/http/swagger"
	"github.com/okian/anchordrift/internal/adapters/journal"
	"github.com/okian/anchordrift/internal/adapters/mq/mqtt"
	app "github.com/okian/anchordrift/internal/app"
	"github.com/okian/anchordrift/internal/config"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "anchordrift stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// components is everything run starts and must tear down.
type components struct {
	svc     *app.Service
	hub     *stream.Hub
	journal *journal.Journal
	mqtt    *mqtt.Adapter
	handler http.Handler
}

// build wires the service and its adapters from cfg and starts the service.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.Get()
	c := &components{
		hub: stream.NewHub(stream.WithBufferSize(cfg.StreamBufferSize)),
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxSessions(cfg.MaxSessions),
		app.WithDecisionsLimit(cfg.MaxDecisionsLimit),
		app.WithDriftConfig(cfg.Drift()),
		app.WithSink("stream", c.hub),
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		c.journal = j
		opts = append(opts, app.WithJournal(j))
	}

	c.svc = app.New(opts...)
	if err := c.svc.Start(ctx); err != nil {
		c.close(ctx)
		return nil, err
	}

	if cfg.MQTTBroker != "" {
		client, err := mqtt.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			c.close(ctx)
			return nil, err
		}
		c.mqtt = mqtt.New(client, c.svc,
			mqtt.WithTopicPrefix(cfg.MQTTTopicPrefix),
			mqtt.WithQoS(byte(cfg.MQTTQoS)),
			mqtt.WithAutoCreate(cfg.MQTTAutoCreate),
		)
		c.svc.AddSink("mqtt", c.mqtt)
		if err := c.mqtt.Start(ctx); err != nil {
			c.close(ctx)
			return nil, err
		}
		log.Info(ctx, "mqtt bridge started", logger.String("broker", cfg.MQTTBroker))
	}

	mux := http.NewServeMux()
	api.NewServer(c.svc, c.svc, c.hub).Register(ctx, mux)
	swagger.Register(ctx, mux)
	c.handler = mux
	return c, nil
}

// close stops intake first, then drains the workers, then closes the sinks.
// The MQTT sink stays connected until the drain has published.
func (c *components) close(ctx context.Context) {
	if c.mqtt != nil {
		if err := c.mqtt.StopIntake(); err != nil {
			logger.Get().Warn(ctx, "mqtt unsubscribe failed", logger.Error(err))
		}
	}
	if c.svc != nil {
		c.svc.Stop()
	}
	if c.mqtt != nil {
		_ = c.mqtt.Close()
	}
	_ = c.hub.Close()
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			logger.Get().Warn(ctx, "journal close failed", logger.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, c.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stream connections are hijacked and ignored by Shutdown; closing the
	// hub ends them.
	_ = c.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	c.close(shutdownCtx)

	log.Info(ctx, "server stopped")
	return serveErr
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges that are only sampled.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateActiveSessions(stats.Sessions)
	if stats.Started {
		metrics.UpdateWorkerCount(stats.Workers)
	}
}

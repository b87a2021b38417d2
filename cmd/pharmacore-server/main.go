// Command pharmacore-server runs the reservation engine behind the wire
// protocol listener, with an admin HTTP port exposing expvar and
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pharmacore/internal/config"
	"pharmacore/internal/core"
	blobs3 "pharmacore/internal/infra/blob/s3"
	"pharmacore/internal/server"
)

// multiMetrics fans operation observations out to several recorders.
type multiMetrics []core.MetricsRecorder

func (m multiMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range m {
		rec.Observe(ctx, operation, success, duration)
	}
}

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	logger := core.StdLogger{L: log.New(os.Stdout, "pharmacore ", log.LstdFlags|log.LUTC)}
	if err := run(*envFile, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(envFile string, logger core.Logger) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, core.DefaultRulesEngine(), logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	blobs, err := core.OpenBlobStore(ctx, core.BlobConfig{
		Driver: cfg.BlobDriver,
		FSRoot: cfg.BlobFSRoot,
		S3: blobs3.Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			SessionToken:    cfg.S3SessionToken,
			PathStyle:       cfg.S3UsePathStyle,
		},
	})
	if err != nil {
		return err
	}

	promMetrics, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	recorders := multiMetrics{core.NewExpvarMetricsRecorder("pharmacore_service"), promMetrics}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(recorders),
	}
	if cfg.TraceLog != "" {
		traceFile, err := os.OpenFile(cfg.TraceLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		defer func() { _ = traceFile.Close() }()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceFile)))
	}

	svc := core.NewService(store, blobs, opts...)

	if cfg.SeedDemo {
		if err := svc.SeedDemoData(ctx, nil); err != nil {
			logger.Info("demo seed skipped", "reason", err.Error())
		}
	}

	go core.NewSweeper(svc, cfg.SweepInterval).Run(ctx)
	go serveAdmin(ctx, cfg.AdminAddr, logger)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	logger.Info("listening",
		"addr", cfg.ListenAddr,
		"admin", cfg.AdminAddr,
		"storage", cfg.StorageDriver,
		"blob", cfg.BlobDriver)

	srv := server.New(svc, logger, server.Options{
		ReadTimeout:   cfg.ReadTimeout,
		IdleTimeout:   cfg.IdleTimeout,
		MaxFrameBytes: cfg.MaxFrameBytes,
	})
	return srv.Serve(ctx, ln)
}

func serveAdmin(ctx context.Context, addr string, logger core.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("admin server failed", "error", err)
	}
}

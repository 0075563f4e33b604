package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"campusgate/internal/platform/config"
	"campusgate/internal/platform/logger"
	"campusgate/internal/platform/metrics"
	"campusgate/internal/seeder"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "campusgate: %v\n", err)
		os.Exit(1)
	}
}

// run wires high-level dependencies and owns the process lifecycle: every
// long-running component joins one errgroup and stops when a signal arrives
// or any of them fails.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "initializing campusgate",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"base_domain", cfg.Tenancy.BaseDomain,
		"database", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka_brokers", len(cfg.Kafka.Brokers),
	)
	metrics.RecordBuildInfo(version, cfg.Environment)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx) //nolint:errcheck // best-effort flush on exit
	}()

	backends, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close(log)

	st := newStores(backends)
	if cfg.Environment != config.EnvProduction {
		if err := seeder.New(st.tenants, st.memberships, log).SeedAll(ctx); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	app, err := buildApp(gctx, cfg, backends, st, log)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, task := range app.background {
		g.Go(func() error { return task(gctx) })
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	g.Go(func() error {
		log.InfoContext(gctx, "starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	app.jobs.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

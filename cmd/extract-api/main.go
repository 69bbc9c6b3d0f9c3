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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Extract/internal/api"
	"github.com/shaiso/Extract/internal/app"
	"github.com/shaiso/Extract/internal/config"
	"github.com/shaiso/Extract/internal/jobs"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/telemetry"
)

var startTime = time.Now()

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "extract-api:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logger, closeLog := telemetry.SetupLogger(cfg.LogLevel)
	defer closeLog()
	logger.Info("starting extract-api")

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	apiCfg := api.Config{
		Store:       store,
		Actions:     jobs.NewActions(store, metrics, logger),
		Catalog:     app.NewRegistry(cfg, metrics, logger),
		DefaultMode: cfg.Mode(),
		Metrics:     metrics,
		Logger:      logger,
	}

	// Без RabbitMQ ручной запуск заданий отвечает 503.
	mqConn, err := mq.Dial(mq.Config{URL: cfg.RabbitMQURL, Name: "extract-api", Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, job triggers disabled", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		apiCfg.Trigger = mq.NewPublisher(mqConn, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(apiCfg).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}

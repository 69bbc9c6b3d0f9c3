// Extract Scheduler — демон, выполняющий задания обработки запросов.
//
// Scheduler:
//   - Каждый тик проверяет расписания import, match, execute, export
//   - Запускает задания, попавшие в окно, не более одного прогона на вид
//   - Перечитывает плагины по триггеру sync
//   - Принимает ручные запуски из очереди jobs.trigger (если доступен RabbitMQ)
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

	"github.com/shaiso/Extract/internal/app"
	"github.com/shaiso/Extract/internal/config"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "extract-scheduler:", err)
		os.Exit(1)
	}
}

func run() error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logger, closeLog := telemetry.SetupLogger(cfg.LogLevel)
	defer closeLog()
	logger.Info("starting extract-scheduler")

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	registry := app.NewRegistry(cfg, metrics, logger)

	// RabbitMQ опционален: без него уведомления только логируются,
	// а ручные запуски недоступны.
	var publisher *mq.Publisher
	mqConn, err := mq.Dial(mq.Config{URL: cfg.RabbitMQURL, Name: "extract-scheduler", Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, running without triggers", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())
		}
		publisher = mq.NewPublisher(mqConn, logger)
	}

	engine := app.NewEngine(app.EngineConfig{
		Config:    cfg,
		Store:     store,
		Registry:  registry,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	engine.Scheduler.Start(ctx)
	defer engine.Scheduler.Stop()

	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:   mq.QueueJobsTrigger,
			Type:    mq.MessageTypeJobTrigger,
			Handler: mq.TriggerHandler(engine.HandleTrigger),
		})
		// Consumer останавливается отменой ctx.
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("trigger consumer stopped", "error", err)
			}
		}()
	}

	// HTTP: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		// Без RabbitMQ планировщик работает, но ручные запуски недоступны.
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok amqp=%t", mqConn.IsConnected())
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.SchedulerAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	return nil
}

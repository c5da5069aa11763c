package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/bootstrap"
	"github.com/kirillkom/peptide-answer-service/internal/config"
	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", worker.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = worker.Queue.SubscribeTranscripts(ctx, func(handlerCtx context.Context, event domain.TranscriptEvent) error {
		writeCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		return worker.HandleTranscript(writeCtx, event)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agentdb/internal/config"
	"agentdb/internal/logger"
	"agentdb/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger(false).Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.NewLogger(cfg.LogJSON)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := server.NewApp(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}

	srv := server.NewServer(app)

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	app.Close()
	log.Info("server exiting")
}

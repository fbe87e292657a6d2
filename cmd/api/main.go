package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/virtual-teacher/internal/app"
	"github.com/markdave123-py/virtual-teacher/internal/config"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("startup failed", "err", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	lg.Info("virtual teacher is running", "port", cfg.Port)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			lg.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", "err", err)
	}
	if err := application.Close(); err != nil {
		lg.Error("close failed", "err", err)
	}
	lg.Info("stopped")
}

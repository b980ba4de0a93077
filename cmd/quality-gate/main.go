package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreschagin/quality-gate/internal/bootstrap"
	"github.com/dreschagin/quality-gate/pkg/config"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting Quality Gate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Собираем компоненты
	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("Failed to initialize quality gate", err)
		os.Exit(1)
	}

	// 4. HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port, "target", cfg.Target.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 5. Ожидаем сигнал для graceful shutdown
	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		log.Error("HTTP server failed", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Failed to release resources", err)
	}

	log.Info("Server stopped gracefully")
	os.Exit(exitCode)
}

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

	"github.com/h-like/sleeprism-chat/api/handlers"
	"github.com/h-like/sleeprism-chat/config"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()
	defer func() { _ = zap.L().Sync() }()

	// initialize databases, services and router
	if err := a.Initialize(); err != nil {
		zap.S().Fatalw("failed to initialize sleeprism-chat", "error", err)
	}
	if err := a.Start(); err != nil {
		zap.S().Fatalw("failed to start background workers", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zap.S().Infow("sleeprism-chat is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("http server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	zap.S().Info("shutting down sleeprism-chat")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnw("http server shutdown incomplete", "error", err)
	}
	a.Close()
}

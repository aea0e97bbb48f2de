package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memorymap/internal/app"
	"memorymap/internal/config"
	httpx "memorymap/internal/http"
	"memorymap/internal/logging"
	"memorymap/internal/realtime"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	hub := realtime.NewHub(a.Store, logger.Named("realtime"))
	hub.Origins = cfg.CORSAllowedOrigins
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("realtime hub stopped", zap.Error(err))
		}
	}()

	// worker
	if a.Worker != nil {
		go a.Worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(a.Deps(hub)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("app_id", cfg.AppID),
			zap.String("store", cfg.StoreBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

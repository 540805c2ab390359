package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/pkg/logger"
)

func main() {
	configDir := flag.String("config", "", "directory to search for config.yaml")
	flag.Parse()

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}

	if _, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("[Main] Failed to init logger: %v", err)
	}
	defer logger.Sync()

	app, err := initializeApp(cfg)
	if err != nil {
		log.Fatalf("[Main] Failed to initialize: %v", err)
	}
	defer func() {
		_ = app.Redis.Close()
		_ = app.DB.Close()
	}()

	app.Scheduler.Start()
	if cfg.Maintenance.Enabled {
		if err := app.Maintenance.Start(); err != nil {
			log.Fatalf("[Main] Failed to start maintenance jobs: %v", err)
		}
	}

	go func() {
		log.Printf("[Main] HTTP server listening: addr=%s", cfg.Server.Addr())
		if err := app.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Main] HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Main] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.HTTPServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] HTTP shutdown error: %v", err)
	}

	// 先停调度再关 hub，避免发布完成后的状态推送落在已关闭的连接上
	app.Scheduler.Stop()
	if cfg.Maintenance.Enabled {
		app.Maintenance.Stop()
	}
	app.Hub.Close()

	log.Println("[Main] Bye")
}

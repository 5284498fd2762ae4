package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/lectura/internal/api"
	"github.com/iconidentify/lectura/internal/api/handler"
	"github.com/iconidentify/lectura/internal/config"
	"github.com/iconidentify/lectura/internal/repository"
	"github.com/iconidentify/lectura/internal/service"
	"github.com/iconidentify/lectura/internal/worker"
	"github.com/iconidentify/lectura/pkg/ffmpeg"
	"github.com/iconidentify/lectura/pkg/ollama"
	"github.com/iconidentify/lectura/pkg/whisper"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lectura %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting lectura",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.BasePath, 0755); err != nil {
		logger.Error("failed to create storage directory", "error", err)
		os.Exit(1)
	}

	// Repositories
	recordingRepo, err := repository.NewSQLiteRecordingRepository(cfg.Storage.DatabasePath, cfg.Storage.EncryptionKey)
	if err != nil {
		logger.Error("failed to open recording database", "error", err)
		os.Exit(1)
	}
	defer recordingRepo.Close()
	jobRepo := repository.NewInMemoryJobRepository()

	// Media engine; the whole pipeline shells out to it.
	processor, err := ffmpeg.NewProcessor()
	if err != nil {
		logger.Error("ffmpeg not available", "error", err)
		os.Exit(1)
	}
	if v, err := ffmpeg.Version(); err == nil {
		logger.Info("ffmpeg detected", "version", v)
	}

	// Optional stage clients
	var transcriber whisper.Client
	if cfg.Whisper.BaseURL != "" || cfg.Whisper.APIKey != "" {
		transcriber = whisper.NewClient(whisper.Config{
			APIKey:  cfg.Whisper.APIKey,
			BaseURL: cfg.Whisper.BaseURL,
			Model:   cfg.Whisper.Model,
			Timeout: cfg.Whisper.Timeout,
		})
		logger.Info("transcription enabled", "model", cfg.Whisper.Model)
	}
	var notes ollama.Client
	if cfg.Notes.BaseURL != "" {
		notes = ollama.NewClient(cfg.Notes)
		logger.Info("notes generation enabled", "model", cfg.Notes.Model, "style", cfg.Notes.Style)
	}

	// Event log
	eventSvc, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize:  cfg.Events.BufferSize,
		PersistToSQLite: true,
		SQLitePath:      cfg.Storage.DatabasePath,
		RetentionDays:   cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to init event service", "error", err)
		os.Exit(1)
	}
	defer eventSvc.Close()

	// Pipeline service
	lectureSvc := service.NewLectureService(
		recordingRepo,
		jobRepo,
		processor,
		processor,
		transcriber,
		notes,
		eventSvc,
		cfg,
		logger,
	)

	// Handlers and router
	recordingHandler := handler.NewRecordingHandler(lectureSvc, logger)
	eventHandler := handler.NewEventHandler(eventSvc, logger)
	healthHandler := handler.NewHealthHandler(jobRepo, cfg.Storage.BasePath)
	router := api.NewRouter(recordingHandler, eventHandler, healthHandler, cfg.Server.APIKey)

	// Worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		lectureSvc,
		logger,
	)
	pool.Start()

	// Periodic event retention cleanup
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := eventSvc.CleanupOldEvents(cleanupCtx); err != nil {
					logger.Warn("event cleanup failed", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancelCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Allow in-flight jobs to finish; a half-processed recording resumes from
	// its cached segments on the next run anyway.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

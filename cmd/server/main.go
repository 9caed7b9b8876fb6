package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/adapters/flightdb"
	"github.com/satriahrh/flightvoice/domain/repositories"
	"github.com/satriahrh/flightvoice/internal/api"
	"github.com/satriahrh/flightvoice/internal/config"
	"github.com/satriahrh/flightvoice/internal/logging"
	"github.com/satriahrh/flightvoice/internal/metrics"
	"github.com/satriahrh/flightvoice/internal/websocket"
	"github.com/satriahrh/flightvoice/usecase"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode(run(cfg, logger), logger))
}

// exitCode logs a failed run and flushes the logger before the process exits.
func exitCode(err error, logger *zap.Logger) int {
	code := 0
	if err != nil {
		logger.Error("Server failed", zap.Error(err))
		code = 1
	}
	logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	dbConfig := flightdb.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	}
	db, err := flightdb.Open(ctx, dbConfig, logger)
	if err != nil {
		return err
	}
	flights := flightdb.NewFlightRepository(db, dbConfig, logger)
	defer flights.Close()

	stages, closers, err := buildStages(ctx, cfg, flights, logger)
	defer closeAll(closers, logger)
	if err != nil {
		return err
	}

	conversationService := usecase.NewConversationService(stages, repositories.AudioConfig{
		SampleRate: cfg.Audio.SampleRate,
		Encoding:   cfg.Audio.Encoding,
		Language:   cfg.Audio.Language,
	}, m, logger)

	hub := websocket.NewHub(conversationService, websocket.HubConfig{
		MaxMessageBytes:        cfg.Server.MaxMessageBytes,
		MaxAudioBytes:          cfg.Server.MaxAudioBytes,
		MaxConcurrentPipelines: cfg.Server.MaxConcurrentPipelines,
		PipelineTimeout:        cfg.Server.PipelineTimeout,
		AllowedOrigins:         cfg.Server.AllowedOrigins,
	}, m, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	janitor := websocket.NewRecordingJanitor(hub, cfg.Server.MaxRecordingDuration, 0, logger)
	janitor.Start()
	defer janitor.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.Server.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	api.InitRoutes(e, hub, usecase.NewFlightService(flights, logger), registry, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	logger.Info("Server started",
		zap.String("addr", addr),
		zap.String("stt", cfg.Providers.SpeechToText),
		zap.String("llm", cfg.Providers.LLM),
		zap.String("tts", cfg.Providers.TextToSpeech),
		zap.String("database", cfg.Database.Driver))

	select {
	case err := <-serverErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	stopHub()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

func closeAll(closers []io.Closer, logger *zap.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close provider client", zap.Error(err))
		}
	}
}

package main

import (
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/gateway"
	"chat-hub/internal"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/projection"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	// main is a thin wrapper, its only job is to turn run() into an OS
	// exit code after every defer has executed.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	rooms := domain.RoomList(config.Rooms)
	if len(rooms) == 0 {
		rooms = domain.DefaultRooms()
	}

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	censored, err := runtime.LoadCensoredWords(logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to load censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(censored.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to build moderator: %w", err)
	}

	// 4. Routing core
	telemetryChan := make(chan event.Event, config.BufferSize)
	registry := runtime.NewRegistry()
	messageRepository := repositories.NewMessageRepository(db, logger)
	searchRepository := repositories.NewSearchRepository(blugeWriter, logger)
	userRepository := repositories.NewUserRepository(db)

	router := runtime.NewRouter(logger, registry, messageRepository,
		searchRepository, &moderator, rooms, config.BufferSize, telemetryChan)
	router.Add(projection.NewTimeline())

	monitoring := observability.NewMonitoringManager(logger, router.QueueStats)

	// 5. Supervised workers
	counter := event.NewCounter()
	handlers := []event.Handler{
		event.NewLatencyHandler(logger, config.LatencyThreshold),
		event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(logger, counter),
		monitoring,
	}

	sup := workers.NewSupervisor(logger, telemetryChan)
	sup.Add(
		router,
		workers.NewTelemetryWorker(logger, telemetryChan, handlers),
		workers.NewChannelCapacityWorker(logger,
			[]workers.NamedQueue{{Name: "commands", Stats: router.QueueStats}},
			telemetryChan, config.MetricInterval),
		workers.NewHealthWorker(logger, config.HealthInterval),
	)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)
	go monitoring.Listen(ctx, config.MetricInterval)

	// 7. HTTP gateway
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	gateway.NewHandler(logger, router, authService, monitoring).Register(engine)

	if config.DebugPort > 0 {
		logger.Info("Debug inspector available",
			"url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		internal.StartDebugServer(db, config.DebugPort, nil, func() map[string]any {
			stats := monitoring.GetLatest()
			return map[string]any{
				"active_connections":  stats.ActiveConnections,
				"total_connections":   stats.TotalConnections,
				"messages_routed":     stats.MessagesRouted,
				"messages_per_second": fmt.Sprintf("%.2f", stats.MessagesPerSecond),
				"queue":               fmt.Sprintf("%d/%d", stats.QueueLength, stats.QueueCapacity),
				"alloc_mem_mb":        stats.AllocMemMb,
			}
		})
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{Addr: address, Handler: engine}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting chat hub", "address", address, "rooms", rooms)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()

	logger.Info("Hub stopped")
	return exitOK, nil
}

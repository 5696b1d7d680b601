package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-core/auth"
	"chat-core/infrastructure/ws"
	"chat-core/observability"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close included)
// executes before the process exits.
func run() error {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	roomRepository := repositories.NewRoomRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)

	dispatcher := runtime.NewDispatcher(log, config.TelemetryBufferSize)
	presence := runtime.NewPresenceTracker()
	directory := auth.NewSessionDirectory()
	verifier := auth.NewTokenVerifier([]byte(config.JWTSecret))
	authorizer := auth.NewChannelAuthorizer(roomRepository)

	roomService := services.NewRoomService(roomRepository, dispatcher, log)
	messageService := services.NewMessageService(messageRepository, roomRepository, directory, dispatcher, log)
	invitationService := services.NewInvitationService(roomService, messageService, log)

	// 4. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	monitor := observability.NewMonitor(log, config.MetricInterval)
	supervisor := workers.NewSupervisor(log).
		Add(workers.NewTelemetry(log, dispatcher.Telemetry, monitor), monitor)
	go supervisor.Run(ctx)
	defer supervisor.Stop()

	// 6. Gateway & HTTP server
	gateway := ws.NewGateway(verifier, directory, authorizer, presence, dispatcher,
		roomService, messageService, invitationService, monitor, log, config.SinkBufferSize)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: gateway.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "address", address)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

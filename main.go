// Package main our entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Etchbanna/Kallemny-Production/internal"
	"github.com/Etchbanna/Kallemny-Production/internal/broker"
	"github.com/Etchbanna/Kallemny-Production/internal/chat"
	"github.com/Etchbanna/Kallemny-Production/internal/config"
	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/handler"
	ratelimiter "github.com/Etchbanna/Kallemny-Production/internal/rate_limiter"
	"github.com/Etchbanna/Kallemny-Production/internal/room"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting application")

	// Init NATS
	var natsOpts []nats.Option
	if cfg.NATSCredFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(cfg.NATSCredFile))
	} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	natsOpts = append(natsOpts, nats.Timeout(5*time.Second))

	conn, err := nats.Connect(cfg.NATSURL, natsOpts...)
	if err != nil {
		logger.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		logger.Error("failed to create jetstream instance", "error", err)
		os.Exit(1)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     broker.StreamName,
		Subjects: []string{broker.SubjectFanout},
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		logger.Error("failed to create/update stream", "error", err)
		os.Exit(1)
	}

	// Init DB
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("could not connect to the postgresql database", "error", err)
		os.Exit(1)
	}
	db := database.NewDB(pool)

	// The hub persists actions, publishes the resulting events, and fans
	// delivered events out to local connections.
	hub := chat.NewHub(db, broker.NewEventPublisher(js), logger, cfg.EventBufferSize)
	if err := broker.Subscribe(ctx, stream, hub.Delivered); err != nil {
		logger.Error("failed to subscribe to event stream", "error", err)
		os.Exit(1)
	}
	go hub.Run(ctx)

	rooms := room.NewService(db, logger)

	authLimiter := ratelimiter.NewIPRateLimiter(
		cfg.AuthRequestsPerMinute,
		time.Minute,
		ratelimiter.CleanupOpts{TTL: 10 * time.Minute, Interval: time.Minute},
	)
	defer authLimiter.Cancel()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Post("/api/auth/register", handler.Register(db, cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL))
		r.Post("/api/auth/login", handler.Login(db, cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL))
	})

	r.Group(func(r chi.Router) {
		r.Use(internal.Middleware(cfg.JWTSecret))
		r.Post("/api/chat/rooms", handler.CreateRoom(rooms))
		r.Get("/api/chat/rooms", handler.ListRooms(db))
		r.Get("/api/chat/rooms/{roomID}/messages", handler.ListMessages(db))
		r.Get("/api/chat/users", handler.ListUsers(db))
		r.Get("/ws", handler.ServeWs(hub, cfg))
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received; shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}

	// Drain NATS connection.
	if err := conn.Drain(); err != nil {
		logger.Warn("couldn't drain NATS conn", "error", err)
	}

	pool.Close()

	logger.Info("server stopped")
}

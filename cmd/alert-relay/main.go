package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tmxfleet/alert-relay/internal/api"
	"github.com/tmxfleet/alert-relay/internal/auth"
	"github.com/tmxfleet/alert-relay/internal/config"
	"github.com/tmxfleet/alert-relay/internal/feed"
	"github.com/tmxfleet/alert-relay/internal/logging"
	"github.com/tmxfleet/alert-relay/internal/notify"
	"github.com/tmxfleet/alert-relay/internal/relay"
	"github.com/tmxfleet/alert-relay/internal/repository"
	"github.com/tmxfleet/alert-relay/internal/worker"
	"github.com/tmxfleet/alert-relay/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logging.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	authn, err := auth.NewAuthenticator(redisClient, cfg.Auth.StaticSessions, cfg.Auth.CacheTTL)
	if err != nil {
		logging.Fatalf("Failed to build authenticator: %v", err)
	}

	hub := ws.NewHub()
	notifier := notify.NewClientNotifier(hub)

	var emailSender notify.EmailSender
	if cfg.Email.Enabled {
		emailSender = notify.NewHTTPEmailSender(cfg.Email.NotifierURL, cfg.Email.Timeout)
	}

	pool := worker.NewPool(cfg.Worker.Count, cfg.Worker.BufferSize)
	pool.Start(ctx)

	evaluator := relay.NewEvaluator(relay.StaticPreferences{Set: relay.DefaultPreferences()})
	coordinator := relay.NewCoordinator(evaluator, notifier, emailSender, pool)

	source := feed.NewRedisFeed(redisClient, cfg.Feed.ChannelPrefix, cfg.Feed.ReceiveTimeout)
	publisher := feed.NewPublisher(redisClient, cfg.Feed.ChannelPrefix)

	manager := relay.NewManager(source, coordinator, cfg.Relay.ViewLimit, relay.Options{
		MaxDeviceSubscriptions: cfg.Relay.MaxDeviceSubscriptions,
		DedupCapacity:          cfg.Relay.DedupCapacity,
		Backoff: relay.Backoff{
			Base: cfg.Relay.BackoffBase,
			Cap:  cfg.Relay.BackoffCap,
		},
	})
	manager.SessionValid = authn.SessionValid
	manager.OnReauth = func(userID string) {
		if err := notifier.RequireReauth(userID); err != nil {
			slog.Warn("reauth signal undeliverable", "user_id", userID, "error", err)
		}
	}
	hub.OnEmpty = manager.Detach

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(20, 40))

	handler := api.NewHandler(ctx, db, publisher, manager, hub)
	handler.RegisterRoutes(router, api.AuthMiddleware(authn))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	manager.Shutdown()
	hub.Close()
	cancel()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

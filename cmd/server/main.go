package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"threads/internal/api"
	"threads/internal/auth"
	"threads/internal/chat"
	"threads/internal/config"
	"threads/internal/db"
	"threads/internal/events"
	"threads/internal/posts"
	"threads/internal/social"
	"threads/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, handlerOpts)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)))
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	users := db.NewUserRepository(database)
	conversations := db.NewConversationRepository(database)
	messages := db.NewMessageRepository(database)

	tokens, err := auth.NewTokenService(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	authenticator, err := auth.NewAuthenticator(users, tokens, cfg.Auth.BcryptCost)
	if err != nil {
		slog.Error("failed to create authenticator", "error", err)
		os.Exit(1)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(rootCtx)

	bus := events.NewBus()
	var publisher events.Publisher = bus
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		redisBus := events.NewRedisBus(redisClient, cfg.Redis.Channel, bus)
		publisher = redisBus
		g.Go(func() error {
			return redisBus.Run(ctx)
		})
		slog.Info("redis event bus enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	hub := ws.NewHub(conversations, publisher)
	bus.Subscribe(hub.HandleEvent)
	go hub.Run()

	server, err := api.NewServer(
		cfg,
		database,
		authenticator,
		chat.NewService(database, conversations, messages, users, publisher),
		social.NewService(users),
		posts.NewService(db.NewPostRepository(database)),
		users,
		hub,
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		slog.Info("shutting down")
	case <-ctx.Done():
		slog.Error("component failed, shutting down")
	}

	cancel()
	server.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	if err := g.Wait(); err != nil {
		slog.Error("server terminated", "error", err)
	}

	slog.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"relaychat/internal/app"
	"relaychat/internal/config"
	"relaychat/internal/events"
	"relaychat/internal/ratelimit"
	"relaychat/internal/server"
	"relaychat/internal/usertoken"
	"relaychat/internal/util"
	"relaychat/pkg/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	var tokenVerifier *usertoken.Verifier
	if cfg.JWKSURL != "" {
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.JWKSURL,
			Issuer:     cfg.TokenIssuer,
			Audience:   cfg.TokenAudience,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			util.Fatal("failed to init jwks verifier", "err", err)
		}
	}

	var limiter, presenceLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		limiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "relaychat:http", cfg.MutationRateLimit, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
		presenceLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "relaychat:presence", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init presence rate limiter", "err", err)
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange)
		if err != nil {
			util.Fatal("failed to init event publisher", "err", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	var avatars storage.AvatarStore
	if cfg.MinioEndpoint != "" {
		avatars, err = storage.NewMinioAvatarStore(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL,
		)
		if err != nil {
			util.Fatal("failed to init avatar storage", "err", err)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Events:      publisher,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer := server.New(server.Config{
		App:                  appCore,
		TokenVerifier:        tokenVerifier,
		Limiter:              limiter,
		PresenceLimiter:      presenceLimiter,
		Avatars:              avatars,
		AllowFallbackSubject: cfg.AllowFallbackSubject,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("chat server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/hr-gateway/internal/server"
	"github.com/Sternrassler/hr-gateway/pkg/cache"
	"github.com/Sternrassler/hr-gateway/pkg/client"
	"github.com/Sternrassler/hr-gateway/pkg/config"
	"github.com/Sternrassler/hr-gateway/pkg/gateway"
	"github.com/Sternrassler/hr-gateway/pkg/geo"
	"github.com/Sternrassler/hr-gateway/pkg/logging"
	"github.com/Sternrassler/hr-gateway/pkg/routes"
	"github.com/Sternrassler/hr-gateway/pkg/upload"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Gateway stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info().Str("redis", redactRedisURL(cfg.RedisURL)).Msg("Connected to Redis")
	}

	handler, err := newHandler(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	if err := cfg.Airtable.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Data routes will answer 500 until credentials are configured")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting HR gateway")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down")
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newHandler wires every component. redisClient may be nil.
func newHandler(cfg config.Config, redisClient *redis.Client, logger zerolog.Logger) (http.Handler, error) {
	overrides, err := config.LoadTableOverrides(cfg.Airtable.TablesFile)
	if err != nil {
		return nil, err
	}
	table, err := routes.Default().WithTables(overrides)
	if err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig(cfg.Airtable.APIKey)
	clientCfg.Timeout = cfg.Airtable.Timeout
	backend, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create backing-source client: %w", err)
	}

	var cacheManager *cache.Manager
	if redisClient != nil {
		cacheManager = cache.NewManager(redisClient)
	}

	return server.New(server.Deps{
		Logger:  logger,
		Gateway: gateway.New(cfg.Airtable, table, backend),
		Geo: geo.NewService(geo.Config{
			URL:      cfg.IPLookup.URL,
			CacheTTL: cfg.IPLookup.CacheTTL,
		}, cacheManager),
		Uploader: upload.New(upload.Config{
			CloudName:    cfg.Cloudinary.CloudName,
			UploadPreset: cfg.Cloudinary.UploadPreset,
			Folder:       cfg.Cloudinary.Folder,
			APIURL:       cfg.Cloudinary.APIURL,
		}),
	}), nil
}

// connectRedis accepts a redis:// URL or a bare host:port.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}

	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", redactRedisURL(redisURL), err)
	}
	return redisClient, nil
}

// redactRedisURL drops credentials from a redis URL for logging.
func redactRedisURL(redisURL string) string {
	scheme, rest, ok := strings.Cut(redisURL, "://")
	if !ok {
		return redisURL
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}

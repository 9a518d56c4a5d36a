package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helios.network/testnetapi/internal/bootstrap"
	"helios.network/testnetapi/internal/config"
	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/internal/server"
	"helios.network/testnetapi/pkg/database"
)

func main() {
	cfg, err := config.Load(config.Getenv("CONFIG_FILE", ""), config.Getenv("ENV_FILE", ".env"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Initialize(logger.Config{
		Debug:  cfg.Debug,
		Fields: map[string]string{"service": "helios-testnet-api", "env": cfg.AppEnv},
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Name:         cfg.Database.Name,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Debug:        cfg.Debug,
	})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error(err)
		}
	}()

	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	if err := bootstrap.SeedBadges(ctx, db); err != nil {
		logger.Fatal("failed to seed badges", zap.Error(err))
	}
	if cfg.AppEnv == config.EnvDevelopment {
		if err := bootstrap.SeedAdminUsers(ctx, db, cfg.Auth.AdminWallets); err != nil {
			logger.Fatal("failed to seed admin users", zap.Error(err))
		}
	}

	redisClient := connectRedis(ctx, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	srv, err := server.NewServer(ctx, cfg, db, redisClient)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// connectRedis returns nil when redis is not configured or unreachable.
// Locks and rate limits then fall back to process memory and realtime
// notifications are disabled.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Warn("REDIS_URL not set, running without redis")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid REDIS_URL, running without redis", zap.Error(err))
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, running without redis", zap.Error(err))
		_ = client.Close()
		return nil
	}

	logger.Info("connected to redis")
	return client
}

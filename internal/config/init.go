package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/steffengr/feature-store-api/compute"
	"github.com/steffengr/feature-store-api/internal/appcontext"
	"github.com/steffengr/feature-store-api/metadata"
)

// InitContext reads the environment and builds the shared runtime context.
func InitContext() (*appcontext.Context, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Warn("No .env file found, using environment variables")
	}

	logger, err := InitLogger()
	if err != nil {
		return nil, err
	}

	metadataClient, err := InitMetadataClient(logger)
	if err != nil {
		return nil, err
	}

	db, err := InitDB()
	if err != nil {
		return nil, err
	}

	redisClient, err := InitRedis()
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		logger.Warn("REDIS_ADDR not set, online store disabled")
	}

	return &appcontext.Context{
		Logger:   logger,
		DB:       db,
		Redis:    redisClient,
		Metadata: metadataClient,
	}, nil
}

func InitLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// InitDB connects to the offline store database and creates the engine's
// bookkeeping tables.
func InitDB() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := compute.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate commit log: %w", err)
	}

	return db, nil
}

// InitRedis connects to the online store. It returns nil without error when
// REDIS_ADDR is not set.
func InitRedis() (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func InitMetadataClient(logger *zap.Logger) (*metadata.Client, error) {
	baseURL := os.Getenv("FS_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("FS_API_URL environment variable is not set")
	}
	return metadata.NewClient(metadata.Config{
		BaseURL: baseURL,
		APIKey:  os.Getenv("FS_API_KEY"),
	}, logger)
}

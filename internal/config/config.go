package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"veoGenerator/internal/models"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

func LoadConfig() (*models.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] .env file not found, using environment variables")
	}

	pollInterval, err := getDuration("POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := getDuration("RETRY_DELAY", time.Second)
	if err != nil {
		return nil, err
	}

	redisDB := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		redisDB, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
	}

	cfg := &models.Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "veo.db"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		MediaDir:      getEnv("MEDIA_DIR", "media"),
		ModelsFile:    getEnv("MODELS_FILE", "models.json"),
		DefaultLang:   getEnv("DEFAULT_LANG", "id"),
		PollInterval:  pollInterval,
		RetryDelay:    retryDelay,
		SeedAPIKeys:   splitList(os.Getenv("API_KEYS")),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Printf("[Config] Store: %s | Media: %s | Lang: %s", cfg.StoreDriver, cfg.MediaDir, cfg.DefaultLang)
	log.Printf("[Config] Poll interval: %s | Retry delay: %s", cfg.PollInterval, cfg.RetryDelay)
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("RETRY_DELAY must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

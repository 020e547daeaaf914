// internal/infrastructure/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string
	LogLevel   string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PostgreSQL
	PostgresDSN string

	// MongoDB (raw document audit store)
	MongoURI string
	MongoDB  string

	// Redis (sync progress ledger)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Remote archive
	ArchiveHost     string
	ArchivePort     int
	ArchiveUser     string
	ArchivePass     string
	ArchiveSessions int
	DialTimeout     time.Duration
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
	AcquireTimeout  time.Duration

	// Circuit breaker
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Retry
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Sync orchestration
	SyncInterval    time.Duration
	BatchSize       int
	Workers         int
	MaxShips        int
	MaxFilesPerShip int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	// Set defaults and override with env vars
	config := &Config{
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,

		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/cruisesync?sslmode=disable"),

		MongoURI: getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "cruisesync"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ArchiveHost:     getEnv("ARCHIVE_HOST", ""),
		ArchivePort:     getEnvAsInt("ARCHIVE_PORT", 22),
		ArchiveUser:     getEnv("ARCHIVE_USER", ""),
		ArchivePass:     getEnv("ARCHIVE_PASS", ""),
		ArchiveSessions: getEnvAsInt("ARCHIVE_SESSIONS", 3),
		DialTimeout:     time.Duration(getEnvAsInt("ARCHIVE_DIAL_TIMEOUT", 20)) * time.Second,
		ListTimeout:     time.Duration(getEnvAsInt("ARCHIVE_LIST_TIMEOUT", 15)) * time.Second,
		DownloadTimeout: time.Duration(getEnvAsInt("ARCHIVE_DOWNLOAD_TIMEOUT", 60)) * time.Second,
		AcquireTimeout:  time.Duration(getEnvAsInt("ARCHIVE_ACQUIRE_TIMEOUT", 30)) * time.Second,

		BreakerThreshold: getEnvAsInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  time.Duration(getEnvAsInt("BREAKER_COOLDOWN", 60)) * time.Second,

		RetryAttempts:  getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay: time.Duration(getEnvAsInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		RetryMaxDelay:  time.Duration(getEnvAsInt("RETRY_MAX_DELAY_MS", 30000)) * time.Millisecond,

		SyncInterval:    time.Duration(getEnvAsInt("SYNC_INTERVAL", 300)) * time.Second,
		BatchSize:       getEnvAsInt("SYNC_BATCH_SIZE", 50),
		Workers:         getEnvAsInt("SYNC_WORKERS", 5),
		MaxShips:        getEnvAsInt("SYNC_MAX_SHIPS", 10),
		MaxFilesPerShip: getEnvAsInt("SYNC_MAX_FILES_PER_SHIP", 50),
	}

	return config, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

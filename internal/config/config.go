package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Redis    RedisConfig
	Postgres PostgresConfig
	Storage  StorageConfig
	Media    MediaConfig
	Platform PlatformConfig
	Channel  ChannelConfig
	HTTP     ServerConfig
	GRPC     GRPCConfig
	LogLevel string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// PostgresConfig holds the Postgres catalog connection configuration
type PostgresConfig struct {
	URL      string
	PoolSize int
}

// StorageConfig holds the legacy filesystem configuration
type StorageConfig struct {
	DownloadsDir string // public downloads directory used by the legacy path
}

// MediaConfig holds media store configuration
type MediaConfig struct {
	Catalog         string // "redis", "postgres" or "memory"
	VolumeDir       string
	MimeType        string
	RollbackPending bool
	PendingTTL      time.Duration
	CleanupInterval time.Duration
}

// PlatformConfig describes the platform the bridge runs against
type PlatformConfig struct {
	Version              string
	MediaStoreMinVersion string
	Mode                 string // "auto", "modern" or "legacy"
}

// ChannelConfig holds the method channel configuration
type ChannelConfig struct {
	Name string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
}

// GRPCConfig holds gRPC server configuration
type GRPCConfig struct {
	Port            string
	MaxMessageBytes int // send and receive limit; base64 bytes grow by a third
}

var defaults = map[string]any{
	"REDIS_HOST":                       "localhost",
	"REDIS_PORT":                       "6379",
	"REDIS_PASSWORD":                   "",
	"POSTGRES_URL":                     "postgres://localhost:5432/bridge?sslmode=disable",
	"POSTGRES_POOL_SIZE":               4,
	"MEDIA_CATALOG":                    "redis",
	"MEDIA_MIME_TYPE":                  "application/pdf",
	"MEDIA_ROLLBACK_PENDING":           false,
	"MEDIA_PENDING_TTL":                "168h",
	"MEDIA_CLEANUP_INTERVAL":           "1h",
	"PLATFORM_VERSION":                 "10",
	"PLATFORM_MEDIA_STORE_MIN_VERSION": "10",
	"STORAGE_MODE":                     "auto",
	"CHANNEL_NAME":                     "bridge/download",
	"HTTP_PORT":                        "8080",
	"GRPC_PORT":                        "50051",
	"GRPC_MAX_MESSAGE_BYTES":           math.MaxInt32,
	"LOG_LEVEL":                        "info",
}

// LoadConfig loads configuration from environment variables and an optional
// bridge.yaml in the working directory. Environment variables win.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	downloads := defaultDownloadsDir()
	v.SetDefault("DOWNLOADS_DIR", downloads)
	v.SetDefault("MEDIA_VOLUME_DIR", downloads)

	v.SetConfigName("bridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Postgres: PostgresConfig{
			URL:      v.GetString("POSTGRES_URL"),
			PoolSize: v.GetInt("POSTGRES_POOL_SIZE"),
		},
		Storage: StorageConfig{
			DownloadsDir: v.GetString("DOWNLOADS_DIR"),
		},
		Media: MediaConfig{
			Catalog:         v.GetString("MEDIA_CATALOG"),
			VolumeDir:       v.GetString("MEDIA_VOLUME_DIR"),
			MimeType:        v.GetString("MEDIA_MIME_TYPE"),
			RollbackPending: v.GetBool("MEDIA_ROLLBACK_PENDING"),
			PendingTTL:      v.GetDuration("MEDIA_PENDING_TTL"),
			CleanupInterval: v.GetDuration("MEDIA_CLEANUP_INTERVAL"),
		},
		Platform: PlatformConfig{
			Version:              v.GetString("PLATFORM_VERSION"),
			MediaStoreMinVersion: v.GetString("PLATFORM_MEDIA_STORE_MIN_VERSION"),
			Mode:                 v.GetString("STORAGE_MODE"),
		},
		Channel: ChannelConfig{
			Name: v.GetString("CHANNEL_NAME"),
		},
		HTTP: ServerConfig{
			Port: v.GetString("HTTP_PORT"),
		},
		GRPC: GRPCConfig{
			Port:            v.GetString("GRPC_PORT"),
			MaxMessageBytes: v.GetInt("GRPC_MAX_MESSAGE_BYTES"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	switch cfg.Media.Catalog {
	case "redis", "postgres", "memory":
	default:
		return nil, errors.Errorf("MEDIA_CATALOG must be redis, postgres or memory, got %q", cfg.Media.Catalog)
	}
	if cfg.GRPC.MaxMessageBytes <= 0 {
		return nil, errors.Errorf("GRPC_MAX_MESSAGE_BYTES must be positive, got %q", v.GetString("GRPC_MAX_MESSAGE_BYTES"))
	}
	if cfg.Media.PendingTTL <= 0 {
		return nil, errors.Errorf("MEDIA_PENDING_TTL must be positive, got %q", v.GetString("MEDIA_PENDING_TTL"))
	}
	if cfg.Media.CleanupInterval <= 0 {
		return nil, errors.Errorf("MEDIA_CLEANUP_INTERVAL must be positive, got %q", v.GetString("MEDIA_CLEANUP_INTERVAL"))
	}

	return cfg, nil
}

// GetRedisAddr returns the Redis address in host:port format
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// defaultDownloadsDir returns $HOME/Downloads, falling back to the temp dir
// when no home directory is available (containers, CI).
func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "Downloads")
	}
	return filepath.Join(home, "Downloads")
}

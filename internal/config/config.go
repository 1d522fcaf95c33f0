package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	DB      DatabaseConfig
	Feed    FeedConfig
	Relay   RelayConfig
	Email   EmailConfig
	Worker  WorkerConfig
	Auth    AuthConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

type FeedConfig struct {
	ChannelPrefix  string
	ReceiveTimeout time.Duration
}

type RelayConfig struct {
	// MaxDeviceSubscriptions is the largest assignment set still served
	// with one subscription per device; above it the plan switches to
	// broadcast.
	MaxDeviceSubscriptions int
	DedupCapacity          int
	BackoffBase            time.Duration
	BackoffCap             time.Duration
	ViewLimit              int
}

type EmailConfig struct {
	Enabled     bool
	NotifierURL string
	Timeout     time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type AuthConfig struct {
	// StaticSessions holds comma-separated "token=userID:role:dev1|dev2"
	// entries resolved without a Redis round trip.
	StaticSessions string
	CacheTTL       time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/alert-relay.db"),
		},
		Feed: FeedConfig{
			ChannelPrefix:  getEnv("FEED_CHANNEL_PREFIX", "alerts:events"),
			ReceiveTimeout: getEnvDuration("FEED_RECEIVE_TIMEOUT", 5*time.Minute),
		},
		Relay: RelayConfig{
			MaxDeviceSubscriptions: getEnvInt("RELAY_MAX_DEVICE_SUBSCRIPTIONS", 10),
			DedupCapacity:          getEnvInt("RELAY_DEDUP_CAPACITY", 1000),
			BackoffBase:            getEnvDuration("RELAY_BACKOFF_BASE", time.Second),
			BackoffCap:             getEnvDuration("RELAY_BACKOFF_CAP", 30*time.Second),
			ViewLimit:              getEnvInt("RELAY_VIEW_LIMIT", 200),
		},
		Email: EmailConfig{
			Enabled:     getEnvBool("EMAIL_ENABLED", false),
			NotifierURL: getEnv("EMAIL_NOTIFIER_URL", ""),
			Timeout:     getEnvDuration("EMAIL_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Auth: AuthConfig{
			StaticSessions: getEnv("AUTH_STATIC_SESSIONS", ""),
			CacheTTL:       getEnvDuration("AUTH_CACHE_TTL", time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Relay.MaxDeviceSubscriptions < 1 {
		return fmt.Errorf("RELAY_MAX_DEVICE_SUBSCRIPTIONS must be at least 1")
	}
	if c.Relay.DedupCapacity < 1 {
		return fmt.Errorf("RELAY_DEDUP_CAPACITY must be at least 1")
	}
	if c.Relay.BackoffBase <= 0 || c.Relay.BackoffCap < c.Relay.BackoffBase {
		return fmt.Errorf("invalid backoff window: base=%s cap=%s", c.Relay.BackoffBase, c.Relay.BackoffCap)
	}

	if c.Email.Enabled && !strings.HasPrefix(c.Email.NotifierURL, "http") {
		return fmt.Errorf("EMAIL_NOTIFIER_URL must be set when email dispatch is enabled")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

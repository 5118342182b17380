package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" yaml:"go_env" default:"development"`

	// Relay server
	RelayHost        string        `env:"RELAY_HOST" yaml:"relay_host"`
	RelayPort        int           `env:"RELAY_PORT" yaml:"relay_port" default:"3001"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" yaml:"sweep_interval" default:"35s"`
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" yaml:"heartbeat_timeout" default:"60s"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE" yaml:"max_message_size" default:"1048576"`
	InboundRate      float64       `env:"INBOUND_RATE_LIMIT" yaml:"inbound_rate_limit" default:"50"`
	InboundBurst     int           `env:"INBOUND_RATE_BURST" yaml:"inbound_rate_burst" default:"100"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"5s"`

	// Peer clients
	RelayURL             string        `env:"RELAY_URL" yaml:"relay_url" default:"ws://localhost:3001/ws/dashboard"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" yaml:"heartbeat_interval" default:"30s"`
	ReconnectInterval    time.Duration `env:"RECONNECT_INTERVAL" yaml:"reconnect_interval" default:"3s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" yaml:"max_reconnect_attempts" default:"5"`

	// Presence (Redis)
	PresenceEnabled bool          `env:"PRESENCE_ENABLED" yaml:"presence_enabled" default:"false"`
	PresenceTTL     time.Duration `env:"PRESENCE_TTL" yaml:"presence_ttl" default:"2m"`
	RedisURL        string        `env:"REDIS_URL" yaml:"redis_url" default:"redis://localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" yaml:"redis_password"`

	// Render job journal (Postgres)
	DatabaseURL string `env:"DATABASE_URL" yaml:"database_url"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" yaml:"log_format" default:"text"`
	LogFile       string `env:"LOG_FILE" yaml:"log_file"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" yaml:"log_max_size_mb" default:"50"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" yaml:"log_max_age_days" default:"7"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		GoEnv:                "development",
		RelayPort:            3001,
		SweepInterval:        35 * time.Second,
		HeartbeatTimeout:     60 * time.Second,
		MaxMessageSize:       1 << 20,
		InboundRate:          50,
		InboundBurst:         100,
		ShutdownTimeout:      5 * time.Second,
		RelayURL:             "ws://localhost:3001/ws/dashboard",
		HeartbeatInterval:    30 * time.Second,
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 5,
		PresenceTTL:          2 * time.Minute,
		RedisURL:             "redis://localhost:6379",
		LogLevel:             "info",
		LogFormat:            "text",
		LogMaxSizeMB:         50,
		LogMaxAgeDays:        7,
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file named by
// RELAY_CONFIG_FILE, and environment variables, in that order of precedence.
func LoadConfig() (*Config, error) {
	// .env is optional; system env vars still apply without it
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env file: %v\n", err)
	}

	config := Default()

	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	loadEnvString(&c.GoEnv, "GO_ENV")

	// Relay server
	loadEnvString(&c.RelayHost, "RELAY_HOST")
	if err := loadEnvInt(&c.RelayPort, "RELAY_PORT"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.SweepInterval, "SWEEP_INTERVAL"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.HeartbeatTimeout, "HEARTBEAT_TIMEOUT"); err != nil {
		return err
	}
	if err := loadEnvInt64(&c.MaxMessageSize, "MAX_MESSAGE_SIZE"); err != nil {
		return err
	}
	if err := loadEnvFloat(&c.InboundRate, "INBOUND_RATE_LIMIT"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.InboundBurst, "INBOUND_RATE_BURST"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT"); err != nil {
		return err
	}

	// Peer clients
	loadEnvString(&c.RelayURL, "RELAY_URL")
	if err := loadEnvDuration(&c.HeartbeatInterval, "HEARTBEAT_INTERVAL"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.ReconnectInterval, "RECONNECT_INTERVAL"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.MaxReconnectAttempts, "MAX_RECONNECT_ATTEMPTS"); err != nil {
		return err
	}

	// Presence
	if err := loadEnvBool(&c.PresenceEnabled, "PRESENCE_ENABLED"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.PresenceTTL, "PRESENCE_TTL"); err != nil {
		return err
	}
	loadEnvString(&c.RedisURL, "REDIS_URL")
	loadEnvString(&c.RedisPassword, "REDIS_PASSWORD")

	// Journal
	loadEnvString(&c.DatabaseURL, "DATABASE_URL")

	// Logging
	loadEnvString(&c.LogLevel, "LOG_LEVEL")
	loadEnvString(&c.LogFormat, "LOG_FORMAT")
	loadEnvString(&c.LogFile, "LOG_FILE")
	if err := loadEnvInt(&c.LogMaxSizeMB, "LOG_MAX_SIZE_MB"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.LogMaxAgeDays, "LOG_MAX_AGE_DAYS"); err != nil {
		return err
	}
	return nil
}

// Helper functions for type conversion; an unset variable leaves target untouched
func loadEnvString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func loadEnvInt(target *int, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvInt64(target *int64, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvFloat(target *float64, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvBool(target *bool, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

// durations accept Go syntax ("30s") or bare milliseconds ("30000")
func loadEnvDuration(target *time.Duration, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.RelayPort < 0 || c.RelayPort > 65535 {
		errors = append(errors, "RELAY_PORT must be between 0 and 65535")
	}
	if c.SweepInterval <= 0 {
		errors = append(errors, "SWEEP_INTERVAL must be positive")
	}
	if c.HeartbeatTimeout <= 0 {
		errors = append(errors, "HEARTBEAT_TIMEOUT must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		errors = append(errors, "HEARTBEAT_INTERVAL must be positive")
	}
	if c.HeartbeatInterval >= c.HeartbeatTimeout {
		errors = append(errors, "HEARTBEAT_INTERVAL must be shorter than HEARTBEAT_TIMEOUT")
	}
	if c.ReconnectInterval <= 0 {
		errors = append(errors, "RECONNECT_INTERVAL must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		errors = append(errors, "MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.MaxMessageSize <= 0 {
		errors = append(errors, "MAX_MESSAGE_SIZE must be positive")
	}
	// INBOUND_RATE_LIMIT=0 turns inbound limiting off
	if c.InboundRate < 0 {
		errors = append(errors, "INBOUND_RATE_LIMIT must not be negative")
	}
	if c.InboundRate > 0 && c.InboundBurst <= 0 {
		errors = append(errors, "INBOUND_RATE_BURST must be positive when INBOUND_RATE_LIMIT is set")
	}
	if !strings.HasPrefix(c.RelayURL, "ws://") && !strings.HasPrefix(c.RelayURL, "wss://") {
		errors = append(errors, "RELAY_URL must use the ws:// or wss:// scheme")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// ListenAddr is the host:port the relay server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.RelayHost, c.RelayPort)
}

// RedisAddr strips the scheme from RedisURL.
func (c *Config) RedisAddr() string {
	addr := strings.TrimPrefix(c.RedisURL, "redis://")
	return strings.TrimPrefix(addr, "rediss://")
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	Admin     AdminConfig     `yaml:"admin"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"`
	DeviceID string `yaml:"device_id"`
	DataPath string `yaml:"data_path"`
	Redis    Redis  `yaml:"redis"`
	Postgres string `yaml:"postgres_dsn"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	RenumberOnCancel bool `yaml:"renumber_on_cancel"`
}

type AdminConfig struct {
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type NotifyConfig struct {
	Provider    string `yaml:"provider"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type RateLimitConfig struct {
	PerMinute       int `yaml:"per_minute"`
	Burst           int `yaml:"burst"`
	DevicePerMinute int `yaml:"device_per_minute"`
	DeviceBurst     int `yaml:"device_burst"`
	// TrustProxy keys the IP limit on X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Driver:   DriverFile,
			DeviceID: "default",
			DataPath: "./data/balha.json",
			Redis:    Redis{Addr: "localhost:6379"},
		},
		Queue: QueueConfig{RenumberOnCancel: true},
		Admin: AdminConfig{
			Username:   "admin",
			Password:   "admin123",
			SessionTTL: 8 * time.Hour,
		},
		Notify: NotifyConfig{Provider: "log", MaxAttempts: 3},
		RateLimit: RateLimitConfig{
			PerMinute:       120,
			Burst:           30,
			DevicePerMinute: 30,
			DeviceBurst:     10,
		},
	}
}

// Load applies defaults, then the YAML file at path (if it exists), then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = readInt("PORT", cfg.Server.Port)
	cfg.Logging.Level = readString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = readString("LOG_FORMAT", cfg.Logging.Format)

	cfg.Store.Driver = readString("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DeviceID = readString("DEVICE_ID", cfg.Store.DeviceID)
	cfg.Store.DataPath = readString("DATA_PATH", cfg.Store.DataPath)
	cfg.Store.Redis.Addr = readString("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = readString("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = readInt("REDIS_DB", cfg.Store.Redis.DB)
	cfg.Store.Postgres = readString("DB_DSN", cfg.Store.Postgres)

	cfg.Queue.RenumberOnCancel = readBool("RENUMBER_ON_CANCEL", cfg.Queue.RenumberOnCancel)

	cfg.Admin.Username = readString("ADMIN_USERNAME", cfg.Admin.Username)
	cfg.Admin.Password = readString("ADMIN_PASSWORD", cfg.Admin.Password)
	cfg.Admin.SessionTTL = readDurationSeconds("SESSION_TTL_SECONDS", cfg.Admin.SessionTTL)

	cfg.Notify.Provider = readString("NOTIFY_PROVIDER", cfg.Notify.Provider)
	cfg.Notify.MaxAttempts = readInt("NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts)

	cfg.RateLimit.PerMinute = readInt("RATE_LIMIT_PER_MIN", cfg.RateLimit.PerMinute)
	cfg.RateLimit.Burst = readInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.RateLimit.DevicePerMinute = readInt("DEVICE_RATE_LIMIT_PER_MIN", cfg.RateLimit.DevicePerMinute)
	cfg.RateLimit.DeviceBurst = readInt("DEVICE_RATE_LIMIT_BURST", cfg.RateLimit.DeviceBurst)
	cfg.RateLimit.TrustProxy = readBool("RATE_LIMIT_TRUST_PROXY", cfg.RateLimit.TrustProxy)

	cfg.Telemetry.OTLPEndpoint = readString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.Insecure = readBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.Insecure)
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverFile, DriverRedis, DriverPostgres:
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverFile && c.Store.DataPath == "" {
		return errors.New("store.data_path is required for the file driver")
	}
	if c.Store.Driver == DriverPostgres && c.Store.Postgres == "" {
		return errors.New("store.postgres_dsn is required for the postgres driver")
	}
	if strings.TrimSpace(c.Store.DeviceID) == "" {
		return errors.New("store.device_id is required")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	return nil
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func readString(key, fallback string) string {
	if raw := os.Getenv(key); raw != "" {
		return raw
	}
	return fallback
}

func readDurationSeconds(key string, fallback time.Duration) time.Duration {
	value := readInt(key, int(fallback/time.Second))
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

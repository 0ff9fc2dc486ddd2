// Package config загружает конфигурацию сервера: значения по умолчанию,
// затем YAML файл (если указан), затем переменные окружения CONTACTSYNC_*.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iudanet/contactsync/internal/logger"
	"github.com/iudanet/contactsync/internal/syncer"
)

// EnvPrefix префикс переменных окружения (CONTACTSYNC_SERVER_ADDRESS и т.д.)
const EnvPrefix = "CONTACTSYNC"

// Драйверы хранилища
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// MinJWTSecretLen минимальная длина секрета для HS256
const MinJWTSecretLen = 32

// Config конфигурация сервера
type Config struct {
	Logging logger.Config `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

// ServerConfig настройки HTTP сервера
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StorageConfig настройки хранилища
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | memory
	Path   string `mapstructure:"path"`   // путь к файлу SQLite
}

// AuthConfig настройки аутентификации
type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret"`
	AdminEmail           string        `mapstructure:"admin_email"`
	AdminPassword        string        `mapstructure:"admin_password"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
	TokenCleanupInterval time.Duration `mapstructure:"token_cleanup_interval"`
	RateLimit            int           `mapstructure:"rate_limit"`
}

// SyncConfig настройки синхронизации
type SyncConfig struct {
	TimestampPolicy    string `mapstructure:"timestamp_policy"` // client | server
	MaxChanges         int    `mapstructure:"max_changes"`
	MaxResolveAttempts int    `mapstructure:"max_resolve_attempts"`
}

// MetricsConfig настройки Prometheus
type MetricsConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// setDefaults задает значения по умолчанию.
// Каждый ключ должен иметь default, иначе viper не увидит его в окружении.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 8<<20)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "contactsync.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.rate_limit", 10)
	v.SetDefault("auth.rate_limit_window", time.Minute)
	v.SetDefault("auth.token_cleanup_interval", time.Hour)

	v.SetDefault("sync.timestamp_policy", string(syncer.StampClient))
	v.SetDefault("sync.max_changes", syncer.DefaultMaxChanges)
	v.SetDefault("sync.max_resolve_attempts", syncer.DefaultMaxResolveAttempts)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.FormatText)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)
}

// Load загружает конфигурацию. configPath может быть пустым.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate проверяет конфигурацию и возвращает все найденные ошибки
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Storage.Driver))
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLen {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLen))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("auth token TTLs must be positive"))
	}
	if c.Auth.RateLimit <= 0 || c.Auth.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("auth.rate_limit and auth.rate_limit_window must be positive"))
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("auth.admin_email and auth.admin_password must be set together"))
	}

	if _, err := syncer.ParseStampPolicy(c.Sync.TimestampPolicy); err != nil {
		errs = append(errs, fmt.Errorf("sync.timestamp_policy: %w", err))
	}
	if c.Sync.MaxChanges <= 0 {
		errs = append(errs, errors.New("sync.max_changes must be positive"))
	}
	if c.Sync.MaxResolveAttempts <= 0 {
		errs = append(errs, errors.New("sync.max_resolve_attempts must be positive"))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address is required when metrics are enabled"))
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// StampPolicy возвращает разобранную политику timestamp
func (c *Config) StampPolicy() syncer.StampPolicy {
	policy, _ := syncer.ParseStampPolicy(c.Sync.TimestampPolicy)
	return policy
}

// Package config loads engine settings from a config file, the environment
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/chmdznr/ftpsync/internal/errors"
	"github.com/chmdznr/ftpsync/internal/logger"
)

const EnvPrefix = "FTPSYNC"

// Backend names
const (
	BackendFTP = "ftp"
	BackendS3  = "s3"
)

// RemoteConfig describes the server side.
type RemoteConfig struct {
	Backend  string        `mapstructure:"backend"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	TLS      bool          `mapstructure:"tls"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Root     string        `mapstructure:"root"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port.
func (r RemoteConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
}

type LocalConfig struct {
	Root string `mapstructure:"root"`
}

type StateConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig holds the timing knobs of the orchestrator.
type SyncConfig struct {
	Tolerance       time.Duration `mapstructure:"tolerance"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	BusyInterval    time.Duration `mapstructure:"busy_interval"`
	IdleInterval    time.Duration `mapstructure:"idle_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config is the full application configuration.
type Config struct {
	Remote RemoteConfig `mapstructure:"remote"`
	S3     S3Config     `mapstructure:"s3"`
	Local  LocalConfig  `mapstructure:"local"`
	State  StateConfig  `mapstructure:"state"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("remote.backend", BackendFTP)
	v.SetDefault("remote.host", "")
	v.SetDefault("remote.port", 21)
	v.SetDefault("remote.tls", false)
	v.SetDefault("remote.user", "anonymous")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.root", "/")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("local.root", "")
	v.SetDefault("state.path", "ftpsync.db")
	v.SetDefault("sync.tolerance", 10*time.Second)
	v.SetDefault("sync.default_interval", 5*time.Second)
	v.SetDefault("sync.busy_interval", 1*time.Second)
	v.SetDefault("sync.idle_interval", 10*time.Second)
	v.SetDefault("log.level", string(logger.LogInfo))
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// NewViper returns a viper instance wired to defaults and FTPSYNC_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file and decodes the result.
// An empty path searches the working directory for ftpsync.{yaml,toml,json}.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ftpsync")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings needed to run a sync.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendFTP:
	case BackendS3:
		if c.S3.Bucket == "" {
			return apperrors.InvalidInput("s3.bucket is required for the s3 backend")
		}
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown remote backend %q", c.Remote.Backend))
	}

	if c.Remote.Host == "" {
		return apperrors.InvalidInput("remote.host is required")
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return apperrors.InvalidInput(fmt.Sprintf("remote.port %d out of range", c.Remote.Port))
	}
	if c.Local.Root == "" {
		return apperrors.InvalidInput("local.root is required")
	}
	if c.Sync.Tolerance <= 0 {
		return apperrors.InvalidInput("sync.tolerance must be positive")
	}
	if c.Sync.DefaultInterval <= 0 || c.Sync.BusyInterval <= 0 || c.Sync.IdleInterval <= 0 {
		return apperrors.InvalidInput("sync intervals must be positive")
	}
	return nil
}

// LoggerConfig converts the log section for the logger package.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = logger.LogLevel(c.Log.Level)
	lc.Format = c.Log.Format
	lc.File = c.Log.File
	lc.MaxSizeMB = c.Log.MaxSizeMB
	lc.MaxBackups = c.Log.MaxBackups
	lc.MaxAgeDays = c.Log.MaxAgeDays
	lc.Compress = c.Log.Compress
	return lc
}

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "BREWLINK"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	HTTPPort     string        `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // postgres | mysql | sqlite | "" (in-memory)
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	Fixtures    string `mapstructure:"fixtures"` // yaml loaded into the in-memory store
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type AuthConfig struct {
	MaxSkew time.Duration `mapstructure:"max_skew"`
}

type CommandsConfig struct {
	// AckStatuses, when non-empty, is the closed set of statuses a device may report.
	AckStatuses   []string `mapstructure:"ack_statuses"`
	ClaimAttempts int      `mapstructure:"claim_attempts"`
}

type TelemetryConfig struct {
	DefaultIntervalS int64 `mapstructure:"default_interval_s"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", int64(2<<20))

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.fixtures", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("auth.max_skew", 600*time.Second)

	v.SetDefault("commands.ack_statuses", []string{})
	v.SetDefault("commands.claim_attempts", 3)

	v.SetDefault("telemetry.default_interval_s", 30)
}

// Load reads the optional config file at path, then BREWLINK_* environment overrides
// (BREWLINK_DATABASE_DSN overrides database.dsn), and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.HTTPPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.http_port %q: must be in range 1..65535", c.Server.HTTPPort)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("invalid server timeouts: must be > 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("invalid server.max_body_bytes: must be > 0")
	}

	switch c.Database.Driver {
	case "":
	case "postgres", "mysql", "sqlite":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("invalid database.dsn: required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Auth.MaxSkew <= 0 {
		return errors.New("invalid auth.max_skew: must be > 0")
	}
	if c.Commands.ClaimAttempts < 1 {
		return errors.New("invalid commands.claim_attempts: must be >= 1")
	}
	for _, s := range c.Commands.AckStatuses {
		switch strings.TrimSpace(s) {
		case "":
			return errors.New("invalid commands.ack_statuses: empty status")
		case "pending", "sent":
			return fmt.Errorf("invalid commands.ack_statuses: %q is reserved", s)
		}
	}
	if c.Telemetry.DefaultIntervalS <= 0 {
		return errors.New("invalid telemetry.default_interval_s: must be > 0")
	}
	return nil
}

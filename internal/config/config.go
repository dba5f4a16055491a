package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"db"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Custody    CustodyConfig     `mapstructure:"custody"`
	Mail       MailConfig        `mapstructure:"mail"`
	Log        LogConfig         `mapstructure:"log"`
	Classrooms []ClassroomConfig `mapstructure:"classrooms"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// DatabaseConfig selects the dialect and connection target
type DatabaseConfig struct {
	Type           string `mapstructure:"type"`
	Path           string `mapstructure:"path"`
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig is optional; an empty Addr keeps PIN attempt tracking in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds the bearer token settings shared with the session issuer
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// CustodyConfig holds the rules of the custody engine
type CustodyConfig struct {
	Timezone         string        `mapstructure:"timezone"`
	QRSecret         string        `mapstructure:"qr_secret"`
	PINCost          int           `mapstructure:"pin_cost"`
	PINMaxFailures   int           `mapstructure:"pin_max_failures"`
	PINLockoutWindow time.Duration `mapstructure:"pin_lockout_window"`
	OverrideRoles    []string      `mapstructure:"override_roles"`
	GrantSweepEvery  time.Duration `mapstructure:"grant_sweep_every"`
}

// MailConfig configures the SES notifier
type MailConfig struct {
	AWSRegion  string   `mapstructure:"aws_region"`
	FromEmail  string   `mapstructure:"from_email"`
	FromName   string   `mapstructure:"from_name"`
	NotifyTo   []string `mapstructure:"notify_to"`
	AppBaseURL string   `mapstructure:"app_base_url"`
	Debug      bool     `mapstructure:"debug"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ClassroomConfig is one entry of the classroom catalog
type ClassroomConfig struct {
	Name                  string `mapstructure:"name"`
	MaxCapacity           int    `mapstructure:"max_capacity"`
	RatioChildrenPerAdult int    `mapstructure:"ratio_children_per_adult"`
	MinAgeMonths          int    `mapstructure:"min_age_months"`
	MaxAgeMonths          int    `mapstructure:"max_age_months"`
	Active                *bool  `mapstructure:"active"`
}

// IsActive treats a missing flag as active
func (c ClassroomConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

// Location resolves the configured time zone used for event dates
func (c CustodyConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads configuration from an optional file, the environment and defaults.
// Precedence: environment > file > defaults. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KIDCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names kept for deployments that predate the prefixed variables
	_ = v.BindEnv("server.port", "KIDCHECK_SERVER_PORT", "PORT")
	_ = v.BindEnv("db.type", "KIDCHECK_DB_TYPE", "DATABASE_TYPE")
	_ = v.BindEnv("db.path", "KIDCHECK_DB_PATH", "DB_PATH")
	_ = v.BindEnv("db.url", "KIDCHECK_DB_URL", "DATABASE_URL")
	_ = v.BindEnv("db.migrations_path", "KIDCHECK_DB_MIGRATIONS_PATH", "MIGRATIONS_PATH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.Classrooms) == 0 {
		cfg.Classrooms = DefaultClassrooms()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_limit_window", "1m")

	v.SetDefault("db.type", "sqlite")
	v.SetDefault("db.path", "./kidcheck.db")
	v.SetDefault("db.url", "")
	v.SetDefault("db.migrations_path", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "kidcheck")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("custody.timezone", "")
	v.SetDefault("custody.qr_secret", "")
	v.SetDefault("custody.pin_cost", 10)
	v.SetDefault("custody.pin_max_failures", 5)
	v.SetDefault("custody.pin_lockout_window", "15m")
	v.SetDefault("custody.override_roles", []string{"leader", "admin"})
	v.SetDefault("custody.grant_sweep_every", "5m")

	v.SetDefault("mail.aws_region", "us-east-1")
	v.SetDefault("mail.from_name", "kidcheck")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// DefaultClassrooms is the catalog used when the configuration lists none.
func DefaultClassrooms() []ClassroomConfig {
	return []ClassroomConfig{
		{Name: "Nursery", MaxCapacity: 8, RatioChildrenPerAdult: 3, MinAgeMonths: 0, MaxAgeMonths: 24},
		{Name: "Maternal", MaxCapacity: 12, RatioChildrenPerAdult: 5, MinAgeMonths: 24, MaxAgeMonths: 48},
		{Name: "Primary", MaxCapacity: 20, RatioChildrenPerAdult: 8, MinAgeMonths: 48, MaxAgeMonths: 96},
	}
}

// Validate checks the settings the service cannot run without
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	}
	if len(c.Custody.QRSecret) < 16 {
		return fmt.Errorf("config: custody.qr_secret must be at least 16 characters")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("config: server.port is required")
	}
	if _, err := c.Custody.Location(); err != nil {
		return fmt.Errorf("config: invalid custody.timezone %q: %w", c.Custody.Timezone, err)
	}
	if c.Custody.PINMaxFailures <= 0 {
		return fmt.Errorf("config: custody.pin_max_failures must be positive")
	}
	seen := make(map[string]bool)
	for _, room := range c.Classrooms {
		name := strings.TrimSpace(room.Name)
		if name == "" {
			return fmt.Errorf("config: classroom name is required")
		}
		if seen[strings.ToLower(name)] {
			return fmt.Errorf("config: duplicate classroom %q", name)
		}
		seen[strings.ToLower(name)] = true
		if room.MaxCapacity <= 0 {
			return fmt.Errorf("config: classroom %q needs a positive max_capacity", name)
		}
		if room.RatioChildrenPerAdult < 0 {
			return fmt.Errorf("config: classroom %q has a negative ratio", name)
		}
	}
	return nil
}

// Package config resolves CLI settings from defaults, a YAML config file,
// a .env file and TAKEDOWN_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TAKEDOWN"

// Config is the resolved CLI configuration.
type Config struct {
	APIURL       string        `mapstructure:"api_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	RateLimitRPS float64       `mapstructure:"rate_limit_rps"`
	PageSize     int           `mapstructure:"page_size"`
	SessionFile  string        `mapstructure:"session_file"`
	LogLevel     string        `mapstructure:"log_level"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Dir is ~/.takedown, the home of the config and session files.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".takedown"
	}
	return filepath.Join(home, ".takedown")
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:3001")
	v.SetDefault("timeout", "15s")
	v.SetDefault("retries", 2)
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("page_size", 15)
	v.SetDefault("session_file", filepath.Join(Dir(), "session.json"))
	v.SetDefault("log_level", "warn")
}

// Load reads configuration into v and decodes it. cfgFile overrides the
// default ~/.takedown/config.yaml; a missing default file is not an error.
// A .env file in the working directory is loaded first when present.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.APIURL) == "":
		return errors.New("config: api_url is required")
	case c.Timeout <= 0:
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	case c.Retries < 0:
		return fmt.Errorf("config: retries must not be negative, got %d", c.Retries)
	case c.RateLimitRPS < 0:
		return fmt.Errorf("config: rate_limit_rps must not be negative, got %g", c.RateLimitRPS)
	case c.PageSize <= 0:
		return fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("config: log_level: %w", err)
	}
	return lvl, nil
}

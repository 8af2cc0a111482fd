// Package config loads relay settings from flags, RELAYCHAT_* environment
// variables and an optional config file, and validates them before the
// server starts.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/andy6609/relaychat/internal/chat"
)

const EnvPrefix = "RELAYCHAT"

type Config struct {
	Addr           string        `mapstructure:"addr"`
	AdminAddr      string        `mapstructure:"admin-addr"`
	Capacity       int           `mapstructure:"capacity"`
	MaxNameLen     int           `mapstructure:"max-name-len"`
	MaxMessageSize int           `mapstructure:"max-message-size"`
	Version        string        `mapstructure:"version"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	AcceptRate     float64       `mapstructure:"accept-rate"`
	AcceptBurst    int           `mapstructure:"accept-burst"`
	Echo           bool          `mapstructure:"echo"`
	LogLevel       string        `mapstructure:"log-level"`
	LogFormat      string        `mapstructure:"log-format"`
}

func Default() Config {
	return Config{
		Addr:           ":5000",
		AdminAddr:      ":9090",
		Capacity:       chat.DefaultCapacity,
		MaxNameLen:     chat.DefaultMaxNameLen,
		MaxMessageSize: chat.DefaultMaxMessageSize,
		Version:        chat.DefaultVersion,
		WriteTimeout:   5 * time.Second,
		AcceptRate:     0,
		AcceptBurst:    1,
		Echo:           true,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// RegisterFlags declares every setting on fs with its default value.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "optional config file (yaml, toml or json)")
	fs.String("addr", d.Addr, "chat listen address")
	fs.String("admin-addr", d.AdminAddr, "admin listen address for /metrics, /healthz and /ws; empty disables")
	fs.Int("capacity", d.Capacity, "maximum number of simultaneous clients")
	fs.Int("max-name-len", d.MaxNameLen, "maximum display name length in bytes")
	fs.Int("max-message-size", d.MaxMessageSize, "read buffer size; one read is one message")
	fs.String("version", d.Version, "string returned by the VERSION command")
	fs.Duration("write-timeout", d.WriteTimeout, "per-recipient write deadline; 0 disables")
	fs.Float64("accept-rate", d.AcceptRate, "accepted connections per second; 0 is unlimited")
	fs.Int("accept-burst", d.AcceptBurst, "accept rate limiter burst")
	fs.Bool("echo", d.Echo, "echo inbound frames to stdout")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "json or text")
}

// Load resolves settings with precedence flag > env > file > default.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("admin-addr", d.AdminAddr)
	v.SetDefault("capacity", d.Capacity)
	v.SetDefault("max-name-len", d.MaxNameLen)
	v.SetDefault("max-message-size", d.MaxMessageSize)
	v.SetDefault("version", d.Version)
	v.SetDefault("write-timeout", d.WriteTimeout)
	v.SetDefault("accept-rate", d.AcceptRate)
	v.SetDefault("accept-burst", d.AcceptBurst)
	v.SetDefault("echo", d.Echo)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr must not be empty"))
	}
	if c.Capacity < 1 || c.Capacity > chat.MaxCapacity {
		err = multierr.Append(err, fmt.Errorf("capacity %d out of range [1, %d]", c.Capacity, chat.MaxCapacity))
	}
	if c.MaxNameLen < 1 {
		err = multierr.Append(err, fmt.Errorf("max-name-len %d must be positive", c.MaxNameLen))
	}
	if c.MaxMessageSize < 1 {
		err = multierr.Append(err, fmt.Errorf("max-message-size %d must be positive", c.MaxMessageSize))
	}
	if c.WriteTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("write-timeout %s must not be negative", c.WriteTimeout))
	}
	if c.AcceptRate < 0 {
		err = multierr.Append(err, fmt.Errorf("accept-rate %v must not be negative", c.AcceptRate))
	}
	if _, lerr := ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		err = multierr.Append(err, fmt.Errorf("log-format %q must be json or text", c.LogFormat))
	}
	return err
}

func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("log-level %q: %w", s, err)
	}
	return lvl, nil
}

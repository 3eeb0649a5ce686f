// Package config loads the prisignal server configuration.
//
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"prisignal/pkg/signal"
)

// FileName is looked up in the working directory when no file is given.
const FileName = "prisignal.yaml"

// EnvPrefix prefixes every environment variable, e.g. PRISIGNAL_ADDR.
const EnvPrefix = "PRISIGNAL_"

// Defaults.
const (
	DefaultAddr        = ":8080"
	DefaultLogLevel    = "info"
	DefaultSignal      = "default"
	DefaultJournalSize = 64
	DefaultRateBurst   = 10
)

// Config holds the server settings.
type Config struct {
	Addr          string   `koanf:"addr"`
	LogLevel      string   `koanf:"log_level"`
	Signals       []string `koanf:"signals"`
	DispatchLimit int      `koanf:"dispatch_limit"`
	LimitMode     string   `koanf:"limit_mode"`
	JournalSize   int      `koanf:"journal_size"`
	// RateLimit is the number of HTTP dispatches per second allowed per
	// signal. Zero disables throttling.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", DefaultAddr, "HTTP listen address")
	fs.String("log-level", DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.StringSlice("signals", []string{DefaultSignal}, "Names of the signals to host")
	fs.Int("dispatch-limit", signal.DefaultDispatchLimit, "Dispatch loop guard ceiling")
	fs.String("limit-mode", signal.LimitDepth.String(), "Loop guard mode (depth, lifetime)")
	fs.Int("journal-size", DefaultJournalSize, "Number of recent dispatches kept per signal")
	fs.Float64("rate-limit", 0, "HTTP dispatches per second per signal (0 disables)")
	fs.Int("rate-burst", DefaultRateBurst, "HTTP dispatch burst size")
}

// Load reads defaults, cfgFile (or ./prisignal.yaml), PRISIGNAL_* variables
// and the flags explicitly set on flags, then validates the result.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"addr":           DefaultAddr,
		"log_level":      DefaultLogLevel,
		"signals":        []string{DefaultSignal},
		"dispatch_limit": signal.DefaultDispatchLimit,
		"limit_mode":     signal.LimitDepth.String(),
		"journal_size":   DefaultJournalSize,
		"rate_limit":     0.0,
		"rate_burst":     DefaultRateBurst,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := cfgFile
	if used == "" {
		if _, err := os.Stat(FileName); err == nil {
			used = FileName
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: PRISIGNAL_LOG_LEVEL -> log_level
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "signals" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type check.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if len(c.Signals) == 0 {
		errs = append(errs, errors.New("at least one signal is required"))
	}
	seen := make(map[string]struct{}, len(c.Signals))
	for _, name := range c.Signals {
		if name == "" {
			errs = append(errs, errors.New("signal names cannot be empty"))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("signal %q listed twice", name))
		}
		seen[name] = struct{}{}
	}
	if c.DispatchLimit < 1 {
		errs = append(errs, fmt.Errorf("dispatch_limit must be positive, got %d", c.DispatchLimit))
	}
	if _, err := signal.ParseLimitMode(c.LimitMode); err != nil {
		errs = append(errs, fmt.Errorf("limit_mode: %w", err))
	}
	if c.JournalSize < 1 {
		errs = append(errs, fmt.Errorf("journal_size must be positive, got %d", c.JournalSize))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit cannot be negative, got %g", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate_burst must be positive when rate_limit is set, got %d", c.RateBurst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Mode returns the parsed LimitMode. Call after Validate.
func (c *Config) Mode() signal.LimitMode {
	m, _ := signal.ParseLimitMode(c.LimitMode)
	return m
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// Liveness oracle kinds.
const (
	LivenessBridge = "bridge"
	LivenessRedis  = "redis"
	LivenessHTTP   = "http"
)

// Defaults for serve flags.
const (
	defaultInstance        = "default"
	defaultListenAddr      = "127.0.0.1:30120"
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultLogFormat       = "json"
	defaultLogLevel        = "info"
	defaultLanguage        = "en"
	defaultLANLicense      = "license:fayoum"
	defaultShutdownTimeout = 30 * time.Second
	defaultDrainGrace      = 3 * time.Second
	defaultLivenessTimeout = 2 * time.Second
)

// Config is the merged serve configuration. Flags override the config file;
// secrets only come from the environment.
type Config struct {
	Instance          string         `koanf:"instance"`
	ListenAddr        string         `koanf:"listen_addr"`
	MetricsAddr       string         `koanf:"metrics_addr"`
	LogFormat         string         `koanf:"log_format"`
	LogLevel          string         `koanf:"log_level"`
	SweepInterval     time.Duration  `koanf:"sweep_interval"`
	RelaxedDuplicates bool           `koanf:"relaxed_duplicates"`
	LANMode           bool           `koanf:"lan_mode"`
	LANLicense        string         `koanf:"lan_license"`
	DefaultLanguage   string         `koanf:"default_language"`
	LockdownMessage   string         `koanf:"lockdown_message"`
	SaveTimeout       time.Duration  `koanf:"save_timeout"`
	ShutdownTimeout   time.Duration  `koanf:"shutdown_timeout"`
	DrainGrace        time.Duration  `koanf:"drain_grace"`
	Liveness          LivenessConfig `koanf:"liveness"`

	Secrets Secrets `koanf:"-"`
}

// LivenessConfig selects the oracle the connection sweep consults.
type LivenessConfig struct {
	Kind        string        `koanf:"kind"`
	URL         string        `koanf:"url"`
	RedisPrefix string        `koanf:"redis_prefix"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

// registerServeFlags declares every serve option.
func registerServeFlags(flags *pflag.FlagSet) {
	flags.String("instance", defaultInstance, "instance name used for the control socket")
	flags.String("listen-addr", defaultListenAddr, "host bridge HTTP listen address")
	flags.String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", defaultLogFormat, "log format (json or text)")
	flags.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	flags.Duration("sweep-interval", 0, "connection sweep interval (0 = default)")
	flags.Bool("relaxed-duplicates", false, "retry duplicate identities through the alternate account slot")
	flags.Bool("lan-mode", false, "resolve every session to the LAN license")
	flags.String("lan-license", defaultLANLicense, "license used in LAN mode")
	flags.String("default-language", defaultLanguage, "language for players without a supported preference")
	flags.String("lockdown-message", "", "disconnect reason on shutdown (empty = localized restart notice)")
	flags.Duration("save-timeout", 0, "timeout for a single player save (0 = default)")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "upper bound for the shutdown save sweep")
	flags.Duration("drain-grace", defaultDrainGrace, "time the host gets to poll final disconnects")
	flags.String("liveness-kind", LivenessBridge, "liveness oracle (bridge, redis or http)")
	flags.String("liveness-url", "", "host session endpoint for the http oracle")
	flags.String("liveness-redis-prefix", "", "key prefix for the redis oracle (empty = default)")
	flags.Duration("liveness-timeout", defaultLivenessTimeout, "http oracle request timeout")
}

// flagKey maps "liveness-redis-prefix" to "liveness.redis_prefix".
func flagKey(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if rest, ok := strings.CutPrefix(key, "liveness_"); ok {
			key = "liveness." + rest
		}
		return key, posflag.FlagVal(flags, f)
	}
}

// loadConfig merges the config file, flags and environment. An empty path
// falls back to the XDG config file when it exists.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
			}
		}
	}

	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "flags").Wrap(err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "env").Wrap(err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (cfg *Config) Validate() error {
	if cfg.Instance == "" {
		return oops.Code("CONFIG_INVALID").Errorf("instance is required")
	}
	if cfg.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.LANMode && cfg.LANLicense == "" {
		return oops.Code("CONFIG_INVALID").Errorf("lan_license is required in LAN mode")
	}
	if cfg.SweepInterval < 0 || cfg.SaveTimeout < 0 || cfg.ShutdownTimeout < 0 || cfg.DrainGrace < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("durations must not be negative")
	}

	switch cfg.Liveness.Kind {
	case LivenessBridge:
	case LivenessRedis:
		if cfg.Secrets.RedisURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("REDIS_URL environment variable is required for the redis oracle")
		}
	case LivenessHTTP:
		if cfg.Liveness.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("liveness.url is required for the http oracle")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			Errorf("liveness.kind must be %q, %q or %q, got %q", LivenessBridge, LivenessRedis, LivenessHTTP, cfg.Liveness.Kind)
	}
	return nil
}

// lanLicense returns the license override, or "" outside LAN mode.
func (cfg *Config) lanLicense() string {
	if !cfg.LANMode {
		return ""
	}
	return cfg.LANLicense
}

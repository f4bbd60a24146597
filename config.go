package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/go-authgate/resume-cli/credstore"
)

// Config is loaded from a YAML file (--config or CONFIG_PATH) with the
// environment layered on top. Command line flags override both.
type Config struct {
	APIURL      string        `yaml:"api_url"      env:"API_URL"      env-default:"http://localhost:8000"`
	MetricsFile string        `yaml:"metrics_file" env:"METRICS_FILE"`
	Store       StoreConfig   `yaml:"store"`
	Log         LogConfig     `yaml:"log"`
	Timeouts    TimeoutConfig `yaml:"timeouts"`
}

// StoreConfig selects where credentials are kept.
type StoreConfig struct {
	Backend       string `yaml:"backend"        env:"STORE_BACKEND"  env-default:"file"`
	TokenFile     string `yaml:"token_file"     env:"TOKEN_FILE"     env-default:".resume-cli-tokens.json"`
	BoltPath      string `yaml:"bolt_path"      env:"BOLT_PATH"      env-default:".resume-cli.db"`
	RedisAddr     string `yaml:"redis_addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db"       env:"REDIS_DB"       env-default:"0"`
	RedisPrefix   string `yaml:"redis_prefix"   env:"REDIS_PREFIX"   env-default:"resume-cli:session"`
}

// LogConfig controls the structured diagnostic log.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"warn"`
	File  string `yaml:"file"  env:"LOG_FILE"`
}

// TimeoutConfig bounds a whole command and the shared refresh call.
type TimeoutConfig struct {
	Request time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"30s"`
	Refresh time.Duration `yaml:"refresh" env:"REFRESH_TIMEOUT" env-default:"10s"`
}

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	apiURL     string
	store      string
	tokenFile  string
	logLevel   string
	plain      bool
	json       bool
}

// loadConfigFile reads the configuration. Sources, highest priority first:
//  1. explicit --config path;
//  2. CONFIG_PATH;
//  3. environment only.
func loadConfigFile(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return &cfg, nil
}

// loadConfig applies flag overrides on top of the file/env configuration
// and validates the result.
func loadConfig(flags *rootFlags) (*Config, error) {
	cfg, err := loadConfigFile(flags.configPath)
	if err != nil {
		return nil, err
	}

	// Priority: flag > env > config file > default
	cfg.APIURL = strings.TrimRight(getConfig(flags.apiURL, cfg.APIURL), "/")
	cfg.Store.Backend = getConfig(flags.store, cfg.Store.Backend)
	cfg.Store.TokenFile = getConfig(flags.tokenFile, cfg.Store.TokenFile)
	cfg.Log.Level = getConfig(flags.logLevel, cfg.Log.Level)

	if err := validateServerURL(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid API_URL: %w", err)
	}
	if cfg.Timeouts.Request <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got: %s", cfg.Timeouts.Request)
	}
	if cfg.Timeouts.Refresh <= 0 {
		return nil, fmt.Errorf("REFRESH_TIMEOUT must be positive, got: %s", cfg.Timeouts.Refresh)
	}
	return cfg, nil
}

// getConfig returns the flag value when set, otherwise the configured one.
func getConfig(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// warnInsecure prints a warning when tokens would travel in plaintext to a
// host other than the local machine.
func warnInsecure(w io.Writer, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "http" {
		return
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return
	}
	fmt.Fprintln(w, "⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
	fmt.Fprintln(w, "⚠️  This is only safe for local development. Use HTTPS in production.")
	fmt.Fprintln(w)
}

// storeConfig maps the configuration onto a credential backend. Credentials
// are namespaced by API URL so several servers can share one token file.
func (c *Config) storeConfig() credstore.Config {
	return credstore.Config{
		Backend:       c.Store.Backend,
		Profile:       c.APIURL,
		TokenFile:     c.Store.TokenFile,
		BoltPath:      c.Store.BoltPath,
		RedisAddr:     c.Store.RedisAddr,
		RedisPassword: c.Store.RedisPassword,
		RedisDB:       c.Store.RedisDB,
		RedisPrefix:   c.Store.RedisPrefix,
	}
}

// newLogger builds the diagnostic logger. Logs go to LOG_FILE when set,
// otherwise to fallback; a nil fallback discards them.
func newLogger(cfg LogConfig, fallback io.Writer) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	noop := func() error { return nil }
	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f.Close, nil
	case fallback != nil:
		return slog.New(slog.NewTextHandler(fallback, &slog.HandlerOptions{Level: level})), noop, nil
	default:
		return slog.New(slog.DiscardHandler), noop, nil
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"api_addr"`     // API bind address, e.g. "127.0.0.1:8080" or ":8080" in Docker
	LogDir      string `yaml:"log_dir"`      // logs directory
	LogLevel    string `yaml:"log_level"`    // console level; the file always gets debug
	DatabaseURL string `yaml:"database_url"` // memory://, sqlite://file.db or postgres://...

	DefaultInterval int           `yaml:"default_interval"` // seconds
	CheckTimeout    time.Duration `yaml:"check_timeout"`
	RetryAttempts   int           `yaml:"probe_retry_attempts"` // 1 = a single GET
	RetryBackoff    time.Duration `yaml:"probe_retry_backoff"`
	ResyncInterval  time.Duration `yaml:"resync_interval"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`

	BotToken        string `yaml:"bot_token"`
	AlertChatID     string `yaml:"alert_chat_id"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	AlertOnRecovery bool   `yaml:"alert_on_recovery"`

	PublicAPIKeys  []string `yaml:"public_api_keys"`
	AdminAPIKeys   []string `yaml:"admin_api_keys"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	PublicRPM      int      `yaml:"public_rpm"`
	PublicBurst    int      `yaml:"public_burst"`
	AdminRPM       int      `yaml:"admin_rpm"`
	AdminBurst     int      `yaml:"admin_burst"`
}

func Default() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		LogDir:          "logs",
		LogLevel:        "info",
		DatabaseURL:     "sqlite://site_monitor.db",
		DefaultInterval: 60,
		CheckTimeout:    10 * time.Second,
		RetryAttempts:   1,
		RetryBackoff:    300 * time.Millisecond,
		ResyncInterval:  60 * time.Second,
		ShutdownGrace:   10 * time.Second,
		PublicRPM:       120,
		PublicBurst:     60,
		AdminRPM:        60,
		AdminBurst:      30,
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file at path (or $CONFIG_FILE), and the environment. A .env file in
// the working directory is loaded into the environment first without
// overriding variables that are already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without the file layer and without validation.
func FromEnv() Config {
	cfg := Default()
	_ = cfg.applyEnv()
	return cfg
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, unit time.Duration, dst *time.Duration) {
		n := -1
		num(key, &n)
		if n >= 0 {
			*dst = time.Duration(n) * unit
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	str("API_ADDR", &c.Addr)
	str("LOG_DIR", &c.LogDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)

	num("DEFAULT_INTERVAL", &c.DefaultInterval)
	dur("CHECK_TIMEOUT", time.Second, &c.CheckTimeout)
	num("PROBE_RETRY_ATTEMPTS", &c.RetryAttempts)
	dur("PROBE_RETRY_BACKOFF_MS", time.Millisecond, &c.RetryBackoff)
	dur("RESYNC_INTERVAL", time.Second, &c.ResyncInterval)
	dur("SHUTDOWN_GRACE", time.Second, &c.ShutdownGrace)

	str("BOT_TOKEN", &c.BotToken)
	str("ALERT_CHAT_ID", &c.AlertChatID)
	str("SLACK_WEBHOOK_URL", &c.SlackWebhookURL)
	if v, ok := os.LookupEnv("ALERT_ON_RECOVERY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ALERT_ON_RECOVERY: %w", err))
		} else {
			c.AlertOnRecovery = b
		}
	}

	list("PUBLIC_API_KEYS", &c.PublicAPIKeys)
	list("ADMIN_API_KEYS", &c.AdminAPIKeys)
	list("ALLOWED_ORIGINS", &c.AllowedOrigins)
	num("PUBLIC_RPM", &c.PublicRPM)
	num("PUBLIC_BURST", &c.PublicBurst)
	num("ADMIN_RPM", &c.AdminRPM)
	num("ADMIN_BURST", &c.AdminBurst)

	return errors.Join(errs...)
}

// Validate fails fast on settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("API_ADDR is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.DefaultInterval < 1 {
		return fmt.Errorf("DEFAULT_INTERVAL must be >= 1, got %d", c.DefaultInterval)
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("CHECK_TIMEOUT must be positive, got %s", c.CheckTimeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("PROBE_RETRY_ATTEMPTS must be >= 1, got %d", c.RetryAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("PROBE_RETRY_BACKOFF_MS must not be negative")
	}
	if c.ResyncInterval < 0 || c.ShutdownGrace < 0 {
		return errors.New("RESYNC_INTERVAL and SHUTDOWN_GRACE must not be negative")
	}
	if !c.HasTelegram() && c.SlackWebhookURL == "" {
		return errors.New("no notification channel: set BOT_TOKEN and ALERT_CHAT_ID, or SLACK_WEBHOOK_URL")
	}
	if c.BotToken != "" && c.AlertChatID == "" {
		return errors.New("ALERT_CHAT_ID is required when BOT_TOKEN is set")
	}
	return nil
}

func (c *Config) HasTelegram() bool {
	return c.BotToken != "" && c.AlertChatID != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDir            = ".koran"
	DefaultConfigFile     = "config.yaml"
	DefaultStoragePath    = ".koran/koran.db"
	DefaultSourceTimeout  = 30 * time.Second
	DefaultConcurrency    = 4
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 4 * time.Second
	DefaultRenderTimeout  = 45 * time.Second
	DefaultBotTokenEnv    = "TELEGRAM_BOT_TOKEN"
	DefaultChannelIDEnv   = "TELEGRAM_CHANNEL_ID"
	DefaultRatePerSec     = 1.0
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultHTTPHost       = "0.0.0.0"
	DefaultHTTPPort       = 8000
	DefaultScheduleSpec   = "@every 1h"
	DefaultTimezone       = "UTC"
	DefaultLookback       = 24 * time.Hour
	DefaultRetainDays     = 30
)

// EnvFiles are loaded from the config directory and the working directory,
// in this order, before secrets are resolved. Later files override earlier ones.
var EnvFiles = []string{".env", ".env.local"}

// CronParser accepts five-field specs, an optional leading seconds field,
// and descriptors such as "@hourly" or "@every 30m".
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

type Config struct {
	Sources  SourcesConfig  `yaml:"sources"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

type SourcesConfig struct {
	// Enabled restricts the built-in adapters by name. Empty enables all.
	Enabled     []string       `yaml:"enabled"`
	Feeds       []string       `yaml:"feeds"`
	Timeout     Duration       `yaml:"timeout"`
	Concurrency int            `yaml:"concurrency"`
	Sequential  bool           `yaml:"sequential"`
	Retry       RetryConfig    `yaml:"retry"`
	UserAgent   string         `yaml:"user_agent"`
	Renderer    RendererConfig `yaml:"renderer"`
}

type RetryConfig struct {
	Attempts  int      `yaml:"attempts"`
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

type RendererConfig struct {
	// Enabled is a pointer so an omitted key keeps the default (on).
	Enabled *bool    `yaml:"enabled"`
	Bin     string   `yaml:"bin"`
	Timeout Duration `yaml:"timeout"`
}

// On reports whether the headless browser renderer should be used.
func (r RendererConfig) On() bool {
	return r.Enabled == nil || *r.Enabled
}

type TelegramConfig struct {
	BotTokenEnv    string  `yaml:"bot_token_env"`
	ChannelIDEnv   string  `yaml:"channel_id_env"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	DisablePreview bool    `yaml:"disable_preview"`

	// Resolved from env vars at load time.
	BotToken  string `yaml:"-"`
	ChannelID string `yaml:"-"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
	// RetainDays is a pointer so an explicit 0 (keep everything) survives
	// defaulting.
	RetainDays *int `yaml:"retain_days"`
}

// Retention returns how many days of cycle history to keep. 0 keeps all.
func (s StorageConfig) Retention() int {
	if s.RetainDays == nil {
		return DefaultRetainDays
	}
	return *s.RetainDays
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr is the listen address for the HTTP server.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type ScheduleConfig struct {
	Spec     string   `yaml:"spec"`
	Timezone string   `yaml:"timezone"`
	Lookback Duration `yaml:"lookback"`
}

// Location returns the schedule timezone. Validate guarantees it loads.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and
// validates. A missing config file yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := LoadEnv(dir); err != nil {
		return nil, err
	}

	var cfg Config
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadEnv loads the env files found in dir and then in the working
// directory. Values already in the process environment are overridden.
func LoadEnv(dir string) error {
	seen := make(map[string]bool)
	for _, base := range []string{dir, "."} {
		for _, name := range EnvFiles {
			path := filepath.Clean(filepath.Join(base, name))
			if seen[path] {
				continue
			}
			seen[path] = true
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Overload(path); err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	s := &cfg.Sources
	if s.Timeout.Duration == 0 {
		s.Timeout.Duration = DefaultSourceTimeout
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Retry.Attempts == 0 {
		s.Retry.Attempts = DefaultRetryAttempts
	}
	if s.Retry.BaseDelay.Duration == 0 {
		s.Retry.BaseDelay.Duration = DefaultRetryBaseDelay
	}
	if s.Retry.MaxDelay.Duration == 0 {
		s.Retry.MaxDelay.Duration = DefaultRetryMaxDelay
	}
	if s.Renderer.Timeout.Duration == 0 {
		s.Renderer.Timeout.Duration = DefaultRenderTimeout
	}

	tg := &cfg.Telegram
	if tg.BotTokenEnv == "" {
		tg.BotTokenEnv = DefaultBotTokenEnv
	}
	if tg.ChannelIDEnv == "" {
		tg.ChannelIDEnv = DefaultChannelIDEnv
	}
	if tg.RatePerSec == 0 {
		tg.RatePerSec = DefaultRatePerSec
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == nil {
		days := DefaultRetainDays
		cfg.Storage.RetainDays = &days
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = DefaultHTTPHost
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = DefaultHTTPPort
	}

	if cfg.Schedule.Spec == "" {
		cfg.Schedule.Spec = DefaultScheduleSpec
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = DefaultTimezone
	}
	if cfg.Schedule.Lookback.Duration == 0 {
		cfg.Schedule.Lookback.Duration = DefaultLookback
	}
}

func resolveEnv(cfg *Config) {
	cfg.Telegram.BotToken = strings.TrimSpace(os.Getenv(cfg.Telegram.BotTokenEnv))
	cfg.Telegram.ChannelID = strings.TrimSpace(os.Getenv(cfg.Telegram.ChannelIDEnv))
}

// Validate checks ranges and formats. Telegram credentials are not checked
// here; delivery paths call Telegram.Validate.
func (c *Config) Validate() error {
	s := c.Sources
	if s.Timeout.Duration < 0 {
		return errors.New("sources.timeout: must be positive")
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("sources.concurrency: must be at least 1, got %d", s.Concurrency)
	}
	if s.Retry.Attempts < 1 {
		return fmt.Errorf("sources.retry.attempts: must be at least 1, got %d", s.Retry.Attempts)
	}
	if s.Retry.MaxDelay.Duration < s.Retry.BaseDelay.Duration {
		return errors.New("sources.retry.max_delay: must not be shorter than base_delay")
	}
	for i, name := range s.Enabled {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sources.enabled[%d]: empty name", i)
		}
	}
	for i, feed := range s.Feeds {
		if !strings.HasPrefix(feed, "http://") && !strings.HasPrefix(feed, "https://") {
			return fmt.Errorf("sources.feeds[%d]: %q is not an http(s) URL", i, feed)
		}
	}

	if c.Telegram.RatePerSec < 0 {
		return errors.New("telegram.rate_per_sec: must not be negative")
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want console or json)", c.Log.Format)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port: %d out of range", c.HTTP.Port)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if _, err := CronParser.Parse(c.Schedule.Spec); err != nil {
		return fmt.Errorf("schedule.spec: %w", err)
	}
	if c.Storage.Retention() < 0 {
		return fmt.Errorf("storage.retain_days: must not be negative, got %d", c.Storage.Retention())
	}
	if c.Schedule.Lookback.Duration < 0 {
		return errors.New("schedule.lookback: must be positive")
	}

	return nil
}

// Validate reports missing delivery credentials.
func (t TelegramConfig) Validate() error {
	var missing []string
	if t.BotToken == "" {
		missing = append(missing, fmt.Sprintf("telegram.bot_token (env %s)", t.BotTokenEnv))
	}
	if t.ChannelID == "" {
		missing = append(missing, fmt.Sprintf("telegram.channel_id (env %s)", t.ChannelIDEnv))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

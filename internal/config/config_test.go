package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_KORAN_TOKEN", "123:abc")
	t.Setenv("TEST_KORAN_CHANNEL", "@koran_feed")

	writeTestYAML(t, dir, DefaultConfigFile, `
sources:
  enabled:
    - Netflix Tech Blog
    - Uber Engineering
  feeds:
    - https://example.com/feed.xml
  timeout: 10s
  concurrency: 2
  sequential: true
  retry:
    attempts: 5
    base_delay: 1s
    max_delay: 8s
  user_agent: koran-test
  renderer:
    enabled: false
    bin: /usr/bin/chromium
    timeout: 1m
telegram:
  bot_token_env: TEST_KORAN_TOKEN
  channel_id_env: TEST_KORAN_CHANNEL
  rate_per_sec: 0.5
  disable_preview: true
storage:
  path: custom.db
  retain_days: 7
log:
  level: debug
  format: json
  file: koran.log
http:
  host: 127.0.0.1
  port: 9090
schedule:
  spec: "0 */2 * * *"
  timezone: Asia/Jakarta
  lookback: 48h
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Sources
	if len(cfg.Sources.Enabled) != 2 || cfg.Sources.Enabled[0] != "Netflix Tech Blog" {
		t.Errorf("enabled = %v", cfg.Sources.Enabled)
	}
	if len(cfg.Sources.Feeds) != 1 {
		t.Errorf("feeds = %v", cfg.Sources.Feeds)
	}
	if cfg.Sources.Timeout.Duration != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Sources.Timeout.Duration)
	}
	if cfg.Sources.Concurrency != 2 || !cfg.Sources.Sequential {
		t.Errorf("concurrency = %d sequential = %v", cfg.Sources.Concurrency, cfg.Sources.Sequential)
	}
	if cfg.Sources.Retry.Attempts != 5 || cfg.Sources.Retry.BaseDelay.Duration != time.Second || cfg.Sources.Retry.MaxDelay.Duration != 8*time.Second {
		t.Errorf("retry = %+v", cfg.Sources.Retry)
	}
	if cfg.Sources.UserAgent != "koran-test" {
		t.Errorf("user_agent = %q", cfg.Sources.UserAgent)
	}
	if cfg.Sources.Renderer.On() {
		t.Error("renderer should be disabled")
	}
	if cfg.Sources.Renderer.Bin != "/usr/bin/chromium" || cfg.Sources.Renderer.Timeout.Duration != time.Minute {
		t.Errorf("renderer = %+v", cfg.Sources.Renderer)
	}

	// Telegram
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.ChannelID != "@koran_feed" {
		t.Errorf("channel id = %q", cfg.Telegram.ChannelID)
	}
	if cfg.Telegram.RatePerSec != 0.5 || !cfg.Telegram.DisablePreview {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if err := cfg.Telegram.Validate(); err != nil {
		t.Errorf("telegram validate: %v", err)
	}

	// Storage, log, http
	if cfg.Storage.Path != "custom.db" || cfg.Storage.Retention() != 7 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File != "koran.log" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.HTTP.Addr() != "127.0.0.1:9090" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr())
	}

	// Schedule
	if cfg.Schedule.Spec != "0 */2 * * *" {
		t.Errorf("schedule spec = %q", cfg.Schedule.Spec)
	}
	if cfg.Schedule.Location().String() != "Asia/Jakarta" {
		t.Errorf("schedule location = %v", cfg.Schedule.Location())
	}
	if cfg.Schedule.Lookback.Duration != 48*time.Hour {
		t.Errorf("lookback = %v", cfg.Schedule.Lookback.Duration)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
telegram:
  bot_token_env: TEST_KORAN_UNSET_TOKEN
  channel_id_env: TEST_KORAN_UNSET_CHANNEL
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Sources.Enabled) != 0 {
		t.Errorf("enabled = %v, want empty", cfg.Sources.Enabled)
	}
	if cfg.Sources.Timeout.Duration != DefaultSourceTimeout {
		t.Errorf("timeout = %v", cfg.Sources.Timeout.Duration)
	}
	if cfg.Sources.Concurrency != DefaultConcurrency {
		t.Errorf("concurrency = %d", cfg.Sources.Concurrency)
	}
	if cfg.Sources.Retry.Attempts != DefaultRetryAttempts {
		t.Errorf("attempts = %d", cfg.Sources.Retry.Attempts)
	}
	if !cfg.Sources.Renderer.On() {
		t.Error("renderer should default to on")
	}
	if cfg.Telegram.RatePerSec != DefaultRatePerSec {
		t.Errorf("rate = %v", cfg.Telegram.RatePerSec)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Storage.Retention() != DefaultRetainDays {
		t.Errorf("retain days = %d", cfg.Storage.Retention())
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:8000" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr())
	}
	if cfg.Schedule.Spec != DefaultScheduleSpec || cfg.Schedule.Timezone != DefaultTimezone {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Lookback.Duration != DefaultLookback {
		t.Errorf("lookback = %v", cfg.Schedule.Lookback.Duration)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources.Concurrency != DefaultConcurrency {
		t.Errorf("concurrency = %d", cfg.Sources.Concurrency)
	}
	if cfg.Telegram.BotTokenEnv != DefaultBotTokenEnv {
		t.Errorf("bot token env = %q", cfg.Telegram.BotTokenEnv)
	}
}

func TestLoad_RetainDaysZeroKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "storage:\n  retain_days: 0\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Storage.Retention(); got != 0 {
		t.Fatalf("retain days = %d, want 0", got)
	}
}

func TestLoad_NegativeRetainDays(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "storage:\n  retain_days: -1\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative retain_days")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "")

	if _, err := Load(dir); err != nil {
		t.Fatalf("load empty: %v", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	if _, err := Load(" "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "sources: [\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
sources:
  subreddits: [golang]
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
sources:
  timeout: soon
`)

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_KORAN_ENV_TOKEN", "")
	t.Setenv("TEST_KORAN_ENV_CHANNEL", "")

	writeTestYAML(t, dir, ".env", "TEST_KORAN_ENV_TOKEN=from-env\nTEST_KORAN_ENV_CHANNEL=-100123\n")
	writeTestYAML(t, dir, ".env.local", "TEST_KORAN_ENV_TOKEN=from-local\n")
	writeTestYAML(t, dir, DefaultConfigFile, `
telegram:
  bot_token_env: TEST_KORAN_ENV_TOKEN
  channel_id_env: TEST_KORAN_ENV_CHANNEL
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.BotToken != "from-local" {
		t.Errorf("bot token = %q, want from-local", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.ChannelID != "-100123" {
		t.Errorf("channel id = %q", cfg.Telegram.ChannelID)
	}
}

// --- Validate tests ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.Sources.Concurrency = 0 }, "sources.concurrency"},
		{"zero attempts", func(c *Config) { c.Sources.Retry.Attempts = 0 }, "sources.retry.attempts"},
		{"max below base", func(c *Config) { c.Sources.Retry.MaxDelay.Duration = time.Millisecond }, "max_delay"},
		{"empty enabled name", func(c *Config) { c.Sources.Enabled = []string{" "} }, "sources.enabled[0]"},
		{"bad feed", func(c *Config) { c.Sources.Feeds = []string{"ftp://x"} }, "sources.feeds[0]"},
		{"negative rate", func(c *Config) { c.Telegram.RatePerSec = -1 }, "rate_per_sec"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"bad cron", func(c *Config) { c.Schedule.Spec = "every tuesday" }, "schedule.spec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_CronSpecs(t *testing.T) {
	for _, spec := range []string{"@hourly", "@every 30m", "*/15 * * * *", "0 0 9 * * *"} {
		cfg := Default()
		cfg.Schedule.Spec = spec
		if err := cfg.Validate(); err != nil {
			t.Errorf("spec %q: %v", spec, err)
		}
	}
}

func TestTelegramValidate_Missing(t *testing.T) {
	tg := TelegramConfig{BotTokenEnv: "A_TOKEN", ChannelIDEnv: "A_CHANNEL"}
	err := tg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"telegram.bot_token", "A_TOKEN", "telegram.channel_id", "A_CHANNEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}

	tg.BotToken = "x"
	err = tg.Validate()
	if err == nil || strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("expected only channel to be missing, got %v", err)
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration{Duration: 90 * time.Second}.MarshalYAML()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if v != "1m30s" {
		t.Fatalf("marshal = %v, want 1m30s", v)
	}
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	Args:  cobra.NoArgs,
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, ".env.example")
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# koran configuration

sources:
  # Built-in blogs to read. Empty enables all of:
  #   Uber Engineering, Netflix Tech Blog, Airbnb Engineering,
  #   Lyft Engineering, AWS Architecture, ByteByteGo
  enabled: []
  # Extra RSS/Atom feeds, one source each.
  feeds: []
  # - "https://example.com/feed.xml"
  timeout: 30s
  concurrency: 4
  sequential: false
  retry:
    attempts: 3
    base_delay: 500ms
    max_delay: 4s
  renderer:
    # Headless Chromium for ByteByteGo. Leave bin empty to auto-detect.
    enabled: true
    bin: ""
    timeout: 45s

telegram:
  bot_token_env: TELEGRAM_BOT_TOKEN
  channel_id_env: TELEGRAM_CHANNEL_ID
  rate_per_sec: 1
  disable_preview: false

storage:
  path: .koran/koran.db
  retain_days: 30

log:
  level: info
  format: console
  file: ""

http:
  host: 0.0.0.0
  port: 8000

schedule:
  spec: "@every 1h"
  timezone: UTC
  lookback: 24h
`

const exampleEnv = `# Copy to .env and fill in.
TELEGRAM_BOT_TOKEN=
# Numeric chat ID (-100...) or @channelname
TELEGRAM_CHANNEL_ID=
`

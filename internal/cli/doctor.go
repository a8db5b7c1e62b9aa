package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/config"
	"github.com/koran-teknologi/koran/internal/notify"
	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/internal/store"
)

// doctorHistory is how many recent cycles the source health check reads.
const doctorHistory = 5

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and dependencies",
	Args:  cobra.NoArgs,
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s (run koran init)", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	enabled := len(cfg.Sources.Enabled)
	if enabled == 0 {
		enabled = len(source.BuiltinNames())
	}
	printCheck(true, "config.yaml (%d built-in sources, %d feeds)", enabled, len(cfg.Sources.Feeds))

	// Enabled names
	if _, err := source.Select(source.Builtin(source.Options{}), cfg.Sources.Enabled); err != nil {
		printCheck(false, "sources.enabled: %v", err)
		ok = false
	}

	// Telegram credentials
	if err := cfg.Telegram.Validate(); err != nil {
		printCheck(false, "telegram: %v", err)
		ok = false
	} else if _, err := notify.ParseChat(cfg.Telegram.ChannelID); err != nil {
		printCheck(false, "%v", err)
		ok = false
	} else {
		printCheck(true, "telegram credentials (%s)", cfg.Telegram.ChannelID)
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "database %s", cfg.Storage.Path)
	}

	// Chromium for rendered sources
	if cfg.Sources.Renderer.On() {
		if bin := cfg.Sources.Renderer.Bin; bin != "" {
			if info, err := os.Stat(bin); err != nil || info.IsDir() {
				printCheck(false, "chromium binary %s not found", bin)
				ok = false
			} else {
				printCheck(true, "chromium %s", bin)
			}
		} else if path, found := launcher.LookPath(); found {
			printCheck(true, "chromium %s", path)
		} else {
			printInfo("no local chromium; it will be downloaded on first render")
		}
	} else {
		printInfo("renderer disabled; ByteByteGo will fail to fetch")
	}

	if db != nil {
		checkSourceHealth(cmd.Context(), db)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkSourceHealth reports sources that failed in every recent cycle.
func checkSourceHealth(ctx context.Context, db *store.Store) {
	if ctx == nil {
		ctx = context.Background()
	}
	cycles, err := db.RecentCycles(ctx, doctorHistory)
	if err != nil || len(cycles) == 0 {
		return
	}

	failures := make(map[string]int)
	var order []string
	lastErr := make(map[string]string)
	for _, c := range cycles {
		srcs, err := db.CycleSources(ctx, c.ID)
		if err != nil {
			return
		}
		for _, s := range srcs {
			if _, seen := failures[s.Source]; !seen {
				order = append(order, s.Source)
				failures[s.Source] = 0
			}
			if s.Error != "" {
				failures[s.Source]++
				if lastErr[s.Source] == "" {
					lastErr[s.Source] = s.Error
				}
			}
		}
	}

	fmt.Println()
	for _, name := range order {
		if failures[name] == len(cycles) {
			printInfo("failing: %s failed in the last %d cycles (%s)", name, len(cycles), firstLine(lastErr[name]))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

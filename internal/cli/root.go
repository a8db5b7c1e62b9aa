// Package cli provides the command-line interface for koran.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "koran",
	Short: "Collect new engineering-blog posts and deliver them to Telegram",
	Long: "koran reads the listing pages of several engineering blogs, keeps the posts published after a watermark, " +
		"and sends them newest first to a Telegram channel.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("koran %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", config.DefaultDir, "config directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level: trace, debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/digest"
	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/store"
	"github.com/koran-teknologi/koran/pkg/logx"
)

var (
	fetchDays      int
	fetchSince     string
	fetchDryRun    bool
	fetchFormat    string
	fetchWatermark string
	noColor        bool
)

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	Aliases: []string{"cli"},
	Short:   "Fetch new posts once and send them to Telegram",
	Long: "fetch runs one ingestion cycle. Posts published after the watermark are sent to the configured " +
		"Telegram channel, newest first. With --dry-run they are printed instead.",
	Args: cobra.NoArgs,
	RunE: fetchAction,
}

func init() {
	fetchCmd.Flags().IntVar(&fetchDays, "days", 1, "look back this many days")
	fetchCmd.Flags().StringVar(&fetchSince, "since", "", "watermark timestamp (RFC 3339 or 2006-01-02); overrides --days")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "print posts instead of sending them")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "terminal", "dry-run output format: terminal, markdown, json")
	fetchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	fetchCmd.Flags().StringVar(&fetchWatermark, "watermark", "", "read the watermark from the store under this key and advance it after delivery")
	rootCmd.AddCommand(fetchCmd)
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	if fetchDays < 0 {
		return errors.New("--days must not be negative")
	}
	formatter, err := digest.New(fetchFormat, !noColor)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Credentials are checked before any source is contacted.
	runner, err := a.runner(fetchDryRun, nil)
	if err != nil {
		return err
	}

	var db *store.Store
	if fetchWatermark != "" || !fetchDryRun {
		if db, err = a.openStore(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	started := now()
	since, err := resolveSince(cmd, db, started)
	if err != nil {
		return err
	}

	res, runErr := runner.Run(ctx, ingest.RunRequest{Since: since, DryRun: fetchDryRun})
	if !fetchDryRun {
		recordCycle(ctx, db, a.log, "fetch", started, since, res, runErr)
	}
	if runErr != nil && res.Since.IsZero() {
		return runErr
	}

	if fetchDryRun {
		if err := formatter.Format(os.Stdout, digestInput(res)); err != nil {
			return err
		}
	} else {
		printDelivery(res, runErr)
	}
	if runErr != nil {
		return runErr
	}

	if fetchWatermark != "" && res.Delivery == ingest.DeliverySent {
		newest := res.Newest()
		if err := db.SetWatermark(ctx, fetchWatermark, newest); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		a.log.Info("watermark advanced", logx.String("key", fetchWatermark), logx.Time("since", newest))
	}
	return nil
}

// resolveSince picks the watermark: --since, then the stored watermark,
// then --days before now.
func resolveSince(cmd *cobra.Command, db *store.Store, started time.Time) (time.Time, error) {
	if strings.TrimSpace(fetchSince) != "" {
		since, err := ingest.ParseWatermark(fetchSince)
		if err != nil {
			return time.Time{}, fmt.Errorf("--since: %w", err)
		}
		return since, nil
	}
	if fetchWatermark != "" && !cmd.Flags().Changed("days") {
		since, ok, err := db.Watermark(cmd.Context(), fetchWatermark)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return since, nil
		}
	}
	return ingest.Lookback(started, fetchDays), nil
}

func printDelivery(res ingest.RunResult, err error) {
	var de *ingest.DeliveryError
	switch {
	case errors.As(err, &de):
		fmt.Printf("Failed to send %d posts to %s: %v\n", len(de.Posts), de.Sink, de.Err)
	case err != nil:
		fmt.Printf("Run failed: %v\n", err)
	case res.Delivery == ingest.DeliverySkipped:
		fmt.Println("No new posts found.")
	default:
		fmt.Printf("Sent %d posts from %d sources.\n", len(res.Posts), len(res.Sources))
	}
	for _, r := range res.Failed() {
		fmt.Printf("  failed: %s: %v\n", r.Name, r.Err)
	}
}

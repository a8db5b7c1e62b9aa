package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/store"
)

var (
	historyLimit   int
	historyFormat  string
	historySources bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent ingestion cycles",
	Args:  cobra.NoArgs,
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of cycles to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	historyCmd.Flags().BoolVar(&historySources, "sources", false, "include per-source outcomes")
	rootCmd.AddCommand(historyCmd)
}

type historyEntry struct {
	store.Cycle
	PerSource []store.CycleSource `json:"per_source,omitempty"`
}

func historyAction(cmd *cobra.Command, _ []string) error {
	if historyFormat != "terminal" && historyFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	db, err := a.openStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cycles, err := db.RecentCycles(ctx, historyLimit)
	if err != nil {
		return err
	}

	entries := make([]historyEntry, 0, len(cycles))
	for _, c := range cycles {
		e := historyEntry{Cycle: c}
		if historySources {
			if e.PerSource, err = db.CycleSources(ctx, c.ID); err != nil {
				return err
			}
		}
		entries = append(entries, e)
	}

	if historyFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No cycles recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s  %-8s  posts=%d sources=%d failed=%d  since %s  (%s)\n",
			e.StartedAt.UTC().Format("2006-01-02 15:04"),
			e.Trigger, e.Delivery, e.Posts, e.Sources, e.Failed,
			e.Since.UTC().Format("2006-01-02 15:04"),
			e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond))
		if e.Error != "" {
			fmt.Printf("    error: %s\n", e.Error)
		}
		for _, s := range e.PerSource {
			status := "ok"
			if s.Error != "" {
				status = s.Error
			}
			fmt.Printf("    %-22s fetched=%d new=%d %s  %s\n", s.Source, s.Fetched, s.New, s.Duration, status)
		}
	}
	return nil
}

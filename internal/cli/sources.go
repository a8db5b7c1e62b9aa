package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered sources",
	Args:  cobra.NoArgs,
	RunE:  sourcesAction,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

type baseURLer interface {
	BaseURL() string
}

func sourcesAction(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srcs, err := buildSources(a)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(srcs))
	for _, s := range srcs {
		active[s.Name()] = true
	}

	// Built-ins are listed in canonical order, disabled ones included.
	listed := make(map[string]bool)
	for _, s := range source.Builtin(a.sourceOptions()) {
		printSource(s, active[s.Name()])
		listed[s.Name()] = true
	}
	total := len(listed)
	for _, s := range srcs {
		if !listed[s.Name()] {
			printSource(s, true)
			total++
		}
	}
	fmt.Printf("\n%d of %d sources enabled.\n", len(srcs), total)
	return nil
}

func printSource(s source.Source, enabled bool) {
	mark := "off"
	if enabled {
		mark = " on"
	}
	u := ""
	if b, ok := s.(baseURLer); ok {
		u = b.BaseURL()
	}
	fmt.Printf("[%s] %-22s %s\n", mark, s.Name(), u)
}

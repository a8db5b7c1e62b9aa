// Package digest renders a cycle's posts for people: terminal, Markdown or JSON.
package digest

import (
	"fmt"
	"io"
	"time"

	"github.com/koran-teknologi/koran/internal/source"
)

// FailedSource names a source that could not be read during the cycle.
type FailedSource struct {
	Name string
	Err  string
}

// DigestInput is the full input for a digest formatter.
type DigestInput struct {
	Posts   []source.Post // newest first
	Sources int           // number of sources queried
	Failed  []FailedSource
	Since   time.Time
}

// Formatter writes a formatted digest to w.
type Formatter interface {
	Format(w io.Writer, input DigestInput) error
}

// New returns the formatter for format: terminal, markdown or json.
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "", "terminal":
		return NewTerminal(color), nil
	case "markdown", "md":
		return NewMarkdown(), nil
	case "json":
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, markdown or json)", format)
	}
}

func formatSince(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

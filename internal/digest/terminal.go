package digest

import (
	"fmt"
	"io"
	"time"
)

// TerminalFormatter formats a digest for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the posts newest first, then any failed sources.
func (f *TerminalFormatter) Format(w io.Writer, input DigestInput) error {
	header := fmt.Sprintf("koran — %d new %s from %d %s since %s",
		len(input.Posts), plural(len(input.Posts), "post", "posts"),
		input.Sources, plural(input.Sources, "source", "sources"),
		formatSince(input.Since))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(input.Posts) == 0 {
		fmt.Fprintln(w, "No new posts found.")
	}
	for _, p := range input.Posts {
		fmt.Fprintf(w, "  %s %s\n", f.green(p.PublishedAt().Format(time.DateOnly)), f.bold(p.Title()))
		fmt.Fprintf(w, "             %s\n", p.Source())
		fmt.Fprintf(w, "             %s\n", f.dim(p.URL()))
		fmt.Fprintln(w)
	}

	if len(input.Failed) > 0 {
		if len(input.Posts) == 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, f.yellow(fmt.Sprintf("Failed: %d %s", len(input.Failed), plural(len(input.Failed), "source", "sources"))))
		for _, fs := range input.Failed {
			fmt.Fprintf(w, "  %s: %s\n", fs.Name, f.dim(fs.Err))
		}
	}
	return nil
}

// ANSI helpers. No-op when color is off.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}

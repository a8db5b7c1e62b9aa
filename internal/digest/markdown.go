package digest

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownFormatter formats a digest as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the digest as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input DigestInput) error {
	fmt.Fprintf(w, "# koran digest\n\n")
	fmt.Fprintf(w, "%d new %s from %d %s since %s\n\n",
		len(input.Posts), plural(len(input.Posts), "post", "posts"),
		input.Sources, plural(input.Sources, "source", "sources"),
		formatSince(input.Since))

	if len(input.Posts) == 0 {
		fmt.Fprintln(w, "No new posts found.")
	}
	for _, p := range input.Posts {
		fmt.Fprintf(w, "- **[%s](%s)** — %s, %s\n",
			escapeMarkdown(p.Title()), p.URL(), p.Source(), p.PublishedAt().Format(time.DateOnly))
	}

	if len(input.Failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "## Failed sources (%d)\n\n", len(input.Failed))
		for _, fs := range input.Failed {
			fmt.Fprintf(w, "- %s: `%s`\n", fs.Name, fs.Err)
		}
	}
	return nil
}

var markdownEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`, `*`, `\*`, `_`, `\_`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

package digest

import (
	"encoding/json"
	"io"

	"github.com/koran-teknologi/koran/internal/source"
)

type jsonDigest struct {
	Meta  jsonMeta      `json:"meta"`
	Posts []source.Post `json:"posts"`
}

type jsonMeta struct {
	Sources int          `json:"sources"`
	Posts   int          `json:"posts"`
	Since   string       `json:"since"`
	Failed  []jsonFailed `json:"failed,omitempty"`
}

type jsonFailed struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// JSONFormatter formats a digest as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the digest as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input DigestInput) error {
	posts := input.Posts
	if posts == nil {
		posts = []source.Post{}
	}
	out := jsonDigest{
		Meta: jsonMeta{
			Sources: input.Sources,
			Posts:   len(posts),
			Since:   input.Since.UTC().Format("2006-01-02T15:04:05Z"),
		},
		Posts: posts,
	}
	for _, fs := range input.Failed {
		out.Meta.Failed = append(out.Meta.Failed, jsonFailed{Source: fs.Name, Error: fs.Err})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

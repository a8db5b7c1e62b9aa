package source

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Post is a normalized blog post. Construct it with NewPost; the zero value
// is not a valid post.
type Post struct {
	title       string
	url         string
	publishedAt time.Time
	source      string
}

// NewPost validates and normalizes the fields of a post. Titles are trimmed
// with inner whitespace runs collapsed, URLs must be absolute http(s) and lose
// their query and fragment, and the timestamp is converted to UTC.
// Failures are reported as *ParseItemError.
func NewPost(title, link string, publishedAt time.Time, sourceName string) (Post, error) {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return Post{}, &ParseItemError{Source: sourceName, Index: -1, Field: "title", Err: ErrEmptyTitle}
	}

	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return Post{}, &ParseItemError{Source: sourceName, Index: -1, Field: "url", Err: err}
	}
	if !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Post{}, &ParseItemError{Source: sourceName, Index: -1, Field: "url", Err: ErrRelativeURL}
	}
	stripQuery(u)

	if publishedAt.IsZero() {
		return Post{}, &ParseItemError{Source: sourceName, Index: -1, Field: "date", Err: ErrNoDate}
	}

	return Post{
		title:       title,
		url:         u.String(),
		publishedAt: publishedAt.UTC(),
		source:      sourceName,
	}, nil
}

func (p Post) Title() string          { return p.title }
func (p Post) URL() string            { return p.url }
func (p Post) PublishedAt() time.Time { return p.publishedAt }

// Source is the human-readable name of the adapter that produced the post.
// It is used for display only, never for identity.
func (p Post) Source() string { return p.source }

type postJSON struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

func (p Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(postJSON{
		Title:       p.title,
		URL:         p.url,
		PublishedAt: p.publishedAt,
		Source:      p.source,
	})
}

// Source fetches the most recent posts of one engineering blog.
type Source interface {
	// Name returns the stable display name (e.g. "Netflix Tech Blog").
	Name() string

	// FetchLatestPosts returns the posts currently listed by the upstream,
	// in document order. Unusable entries are skipped and logged; a failure
	// of the whole listing is returned as *FetchError.
	FetchLatestPosts(ctx context.Context) ([]Post, error)
}

package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSource reads an RSS or Atom feed. It is used for blogs that publish a
// feed, configured by URL.
type FeedSource struct {
	page
}

// NewFeed creates a feed source. The display name is the feed URL's host
// and path.
func NewFeed(feedURL string, opts Options) (*FeedSource, error) {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil {
		return nil, fmt.Errorf("feed: parse %q: %w", feedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("feed: %q is not an absolute http(s) URL", feedURL)
	}
	return &FeedSource{page: newPage(feedName(u), u.String(), opts)}, nil
}

func feedName(u *url.URL) string {
	return u.Host + strings.TrimSuffix(u.EscapedPath(), "/")
}

func (s *FeedSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	body, err := s.fetch.get(ctx, s.baseURL)
	if err != nil {
		return nil, s.fail(err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrStructure, err))
	}

	results := make([]itemResult, 0, len(feed.Items))
	for i, item := range feed.Items {
		results = append(results, s.parseItem(i, item))
	}
	return collect(s.log, results), nil
}

func (s *FeedSource) parseItem(i int, item *gofeed.Item) itemResult {
	published := itemPublishedTime(item)
	if published.IsZero() {
		return skip(s.name, i, "date", ErrNoDate)
	}
	return s.item(i, item.Title, s.baseURL, item.Link, published)
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/koran-teknologi/koran/pkg/logx"
)

// Options configures the built-in adapters. The zero value is usable.
type Options struct {
	UserAgent   string
	HTTPTimeout time.Duration
	Retry       RetryOptions

	// Transport replaces the network transport; tests use it to serve fixtures.
	Transport http.RoundTripper

	// Renderer runs the scripted fetch for sites that need a browser.
	// A nil Renderer disables those sites' fetches with an error.
	Renderer Renderer

	Logger logx.Logger

	// Now is the clock used for year inference. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// page holds what every HTML listing adapter shares: identity, HTTP client,
// scoped logger and clock.
type page struct {
	name    string
	baseURL string
	fetch   *fetcher
	log     logx.Logger
	now     func() time.Time
}

func newPage(name, baseURL string, opts Options) page {
	log := opts.Logger.With(logx.String("source", name))
	return page{
		name:    name,
		baseURL: baseURL,
		fetch:   newFetcher(opts, log),
		log:     log,
		now:     opts.clock(),
	}
}

func (p *page) Name() string { return p.name }

// BaseURL is the listing page the adapter reads.
func (p *page) BaseURL() string { return p.baseURL }

func (p *page) fail(err error) error {
	return &FetchError{Source: p.name, URL: p.baseURL, Err: err}
}

// load downloads and parses the listing page.
func (p *page) load(ctx context.Context) (*goquery.Document, error) {
	body, err := p.fetch.get(ctx, p.baseURL)
	if err != nil {
		return nil, p.fail(err)
	}
	return p.parse(body)
}

func (p *page) parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, p.fail(fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

// entries returns the listing entries matched by selector, or a FetchError
// wrapping ErrStructure when there are none.
func (p *page) entries(doc *goquery.Document, selector string) (*goquery.Selection, error) {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, p.fail(fmt.Errorf("%w: no %q elements", ErrStructure, selector))
	}
	return sel, nil
}

// scan parses every entry with fn and returns the usable posts in document order.
func (p *page) scan(sel *goquery.Selection, fn func(i int, s *goquery.Selection) itemResult) []Post {
	results := make([]itemResult, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		results = append(results, fn(i, s))
	})
	return collect(p.log, results)
}

// item builds a post from raw fields, resolving href against the adapter's
// link base.
func (p *page) item(i int, title, linkBase, href string, publishedAt time.Time) itemResult {
	link, err := CanonicalURL(linkBase, href)
	if err != nil {
		return skip(p.name, i, "url", err)
	}
	post, err := NewPost(title, link, publishedAt, p.name)
	if err != nil {
		var pe *ParseItemError
		if errors.As(err, &pe) {
			pe.Index = i
			return itemResult{err: pe}
		}
		return skip(p.name, i, "post", err)
	}
	return itemResult{post: post}
}

// itemResult is the outcome of parsing one listing entry: a post or a skip.
type itemResult struct {
	post Post
	err  *ParseItemError
}

func skip(sourceName string, index int, field string, err error) itemResult {
	return itemResult{err: &ParseItemError{Source: sourceName, Index: index, Field: field, Err: err}}
}

// collect keeps the posts of results in order and logs every skipped entry.
func collect(log logx.Logger, results []itemResult) []Post {
	posts := make([]Post, 0, len(results))
	skipped := 0
	for _, r := range results {
		if r.err != nil {
			skipped++
			log.Warn("skipping entry",
				logx.Int("index", r.err.Index),
				logx.String("field", r.err.Field),
				logx.Err(r.err.Err))
			continue
		}
		posts = append(posts, r.post)
	}
	if skipped > 0 {
		log.Debug("entries skipped", logx.Int("skipped", skipped), logx.Int("kept", len(posts)))
	}
	return posts
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

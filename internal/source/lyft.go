package source

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	lyftName       = "Lyft Engineering"
	lyftURL        = "https://eng.lyft.com/"
	lyftQuery      = "div[data-post-id]"
	lyftTitleQuery = "h2[class*='graf--title'], h3[class*='graf--title']"
)

// LyftSource reads the Lyft Engineering blog. Entries without a time element
// fall back to a short "Mon Day" anchor label, pinned to noon UTC.
type LyftSource struct {
	page
}

func NewLyft(opts Options) *LyftSource {
	return &LyftSource{page: newPage(lyftName, lyftURL, opts)}
}

func (s *LyftSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	articles, err := s.entries(doc, lyftQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(articles, s.parseArticle), nil
}

func (s *LyftSource) parseArticle(i int, article *goquery.Selection) itemResult {
	title := text(article.Find(lyftTitleQuery).First())
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, ok := article.Find("a[href]").First().Attr("href")
	if !ok {
		return skip(s.name, i, "url", ErrRelativeURL)
	}
	if article.Find("time[datetime]").Length() > 0 {
		return s.timedItem(i, title, href, article)
	}

	published, ok := s.anchorDate(article)
	if !ok {
		return skip(s.name, i, "date", ErrNoDate)
	}
	return s.item(i, title, s.baseURL, href, published)
}

// anchorDate looks for an anchor whose label parses as "Mon Day[, Year]".
func (s *LyftSource) anchorDate(article *goquery.Selection) (time.Time, bool) {
	var published time.Time
	article.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		t, err := ParseMonthDay(trimDateDecoration(text(a)), s.now())
		if err != nil {
			return true
		}
		published = t.Add(12 * time.Hour)
		return false
	})
	return published, !published.IsZero()
}

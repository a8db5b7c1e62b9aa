package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

const (
	netflixName  = "Netflix Tech Blog"
	netflixURL   = "https://netflixtechblog.com/"
	netflixQuery = "div.u-xs-size12of12"
)

// NetflixSource reads the Netflix Tech Blog listing.
type NetflixSource struct {
	page
}

func NewNetflix(opts Options) *NetflixSource {
	return &NetflixSource{page: newPage(netflixName, netflixURL, opts)}
}

func (s *NetflixSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	articles, err := s.entries(doc, netflixQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(articles, s.parseArticle), nil
}

func (s *NetflixSource) parseArticle(i int, article *goquery.Selection) itemResult {
	title := text(article.Find("h3").First())
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, ok := article.Find("a[href]").First().Attr("href")
	if !ok {
		return skip(s.name, i, "url", ErrRelativeURL)
	}
	return s.timedItem(i, title, href, article)
}

// timedItem completes an entry whose date lives in a time[datetime] element.
// Medium-hosted blogs share this layout.
func (p *page) timedItem(i int, title, href string, entry *goquery.Selection) itemResult {
	stamp, ok := entry.Find("time[datetime]").First().Attr("datetime")
	if !ok {
		return skip(p.name, i, "date", ErrNoDate)
	}
	published, err := ParseISOTime(stamp)
	if err != nil {
		return skip(p.name, i, "date", err)
	}
	return p.item(i, title, p.baseURL, href, published)
}

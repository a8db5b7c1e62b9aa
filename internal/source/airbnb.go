package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

const (
	airbnbName      = "Airbnb Engineering"
	airbnbURL       = "https://medium.com/airbnb-engineering/"
	airbnbQuery     = "div.col.u-xs-size12of12"
	airbnbTitle     = "h3 div.u-letterSpacingTight"
	airbnbLinkQuery = "a[href*='/airbnb-engineering/']"
)

// AirbnbSource reads the Airbnb Engineering publication on Medium.
type AirbnbSource struct {
	page
}

func NewAirbnb(opts Options) *AirbnbSource {
	return &AirbnbSource{page: newPage(airbnbName, airbnbURL, opts)}
}

func (s *AirbnbSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	articles, err := s.entries(doc, airbnbQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(articles, s.parseArticle), nil
}

func (s *AirbnbSource) parseArticle(i int, article *goquery.Selection) itemResult {
	title := text(article.Find(airbnbTitle).First())
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, ok := article.Find(airbnbLinkQuery).First().Attr("href")
	if !ok {
		return skip(s.name, i, "url", ErrRelativeURL)
	}
	return s.timedItem(i, title, href, article)
}

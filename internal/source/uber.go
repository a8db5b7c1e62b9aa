package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	uberName      = "Uber Engineering"
	uberURL       = "https://www.uber.com/en-US/blog/engineering/"
	uberLinkBase  = "https://www.uber.com"
	uberCardQuery = `a[data-baseweb="card"]`
)

// UberSource reads the Uber Engineering blog. Cards carry a "Month Day / Region"
// label; the year is inferred from the clock when missing.
type UberSource struct {
	page
}

func NewUber(opts Options) *UberSource {
	return &UberSource{page: newPage(uberName, uberURL, opts)}
}

func (s *UberSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := s.entries(doc, uberCardQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(cards, s.parseCard), nil
}

func (s *UberSource) parseCard(i int, card *goquery.Selection) itemResult {
	title := text(card.Find("h2").First())
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, _ := card.Attr("href")

	label := card.Find("p").FilterFunction(func(_ int, p *goquery.Selection) bool {
		class, _ := p.Attr("class")
		for _, c := range strings.Fields(class) {
			if c == "f5" {
				return true
			}
		}
		return false
	}).First()
	if label.Length() == 0 {
		return skip(s.name, i, "date", ErrNoDate)
	}
	published, err := ParseMonthDay(trimDateDecoration(text(label)), s.now())
	if err != nil {
		return skip(s.name, i, "date", err)
	}
	return s.item(i, title, uberLinkBase, href, published)
}

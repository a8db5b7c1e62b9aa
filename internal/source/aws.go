package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

const (
	awsName       = "AWS Architecture"
	awsURL        = "https://aws.amazon.com/blogs/architecture/"
	awsQuery      = "div.lb-row.lb-snap"
	awsTitleLink  = "h2.blog-post-title a"
	awsTitleSpan  = `span[property="name headline"]`
	awsDateSelect = `footer.blog-post-meta time[property="datePublished"]`
)

// AWSSource reads the AWS Architecture blog. Timestamps carry numeric offsets
// such as -07:00.
type AWSSource struct {
	page
}

func NewAWS(opts Options) *AWSSource {
	return &AWSSource{page: newPage(awsName, awsURL, opts)}
}

func (s *AWSSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.entries(doc, awsQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(rows, s.parseRow), nil
}

func (s *AWSSource) parseRow(i int, row *goquery.Selection) itemResult {
	link := row.Find(awsTitleLink).First()
	if link.Length() == 0 {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	title := text(link.Find(awsTitleSpan).First())
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, _ := link.Attr("href")

	stamp, ok := row.Find(awsDateSelect).First().Attr("datetime")
	if !ok {
		return skip(s.name, i, "date", ErrNoDate)
	}
	published, err := ParseISOTime(stamp)
	if err != nil {
		return skip(s.name, i, "date", err)
	}
	return s.item(i, title, s.baseURL, href, published)
}

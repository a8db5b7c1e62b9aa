package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

const (
	byteByteGoName    = "ByteByteGo"
	byteByteGoURL     = "https://blog.bytebytego.com/"
	byteByteGoModal   = `button[data-testid="close-modal"]`
	byteByteGoQuery   = `div[role="article"]`
	byteByteGoTitleEl = `a[data-testid="post-preview-title"]`
)

// ByteByteGoSource reads the ByteByteGo newsletter archive, which is only
// populated after client-side rendering.
type ByteByteGoSource struct {
	page
	renderer Renderer
}

func NewByteByteGo(opts Options) *ByteByteGoSource {
	return &ByteByteGoSource{
		page:     newPage(byteByteGoName, byteByteGoURL, opts),
		renderer: opts.Renderer,
	}
}

func (s *ByteByteGoSource) FetchLatestPosts(ctx context.Context) ([]Post, error) {
	if s.renderer == nil {
		return nil, s.fail(ErrNoRenderer)
	}
	html, err := s.renderer.Render(ctx, RenderRequest{
		URL:     s.baseURL,
		Dismiss: byteByteGoModal,
		WaitFor: byteByteGoQuery,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.fail(ctxErr)
		}
		return nil, s.fail(err)
	}
	doc, err := s.parse([]byte(html))
	if err != nil {
		return nil, err
	}
	articles, err := s.entries(doc, byteByteGoQuery)
	if err != nil {
		return nil, err
	}
	return s.scan(articles, s.parseArticle), nil
}

func (s *ByteByteGoSource) parseArticle(i int, article *goquery.Selection) itemResult {
	link := article.Find(byteByteGoTitleEl).First()
	title := text(link)
	if title == "" {
		return skip(s.name, i, "title", ErrEmptyTitle)
	}
	href, _ := link.Attr("href")
	return s.timedItem(i, title, href, article)
}

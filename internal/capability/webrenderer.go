package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	readability "codeberg.org/readeck/go-readability"
)

// ChromedpRenderer backs WebRenderer with a headless-Chrome fetch (JS
// execution) followed by readability-style main-content extraction,
// grounded in lysyi3m-rss-comb's goquery-based body extraction.
type ChromedpRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
}

// NewChromedpRenderer starts a shared headless-Chrome allocator. Callers
// must call Close when done.
func NewChromedpRenderer(timeout time.Duration) *ChromedpRenderer {
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChromedpRenderer{allocCtx: allocCtx, cancel: cancel, timeout: timeout}
}

func (r *ChromedpRenderer) Close() { r.cancel() }

func (r *ChromedpRenderer) Render(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(500*time.Millisecond), // let client-side render settle
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("render %s: parse fallback: %w", url, err)
	}
	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return "", fmt.Errorf("render %s: no extractable text", url)
	}
	return text, nil
}

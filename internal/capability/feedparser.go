package capability

import (
	"context"

	"github.com/mmcdole/gofeed"
)

// GofeedParser backs FeedParser with mmcdole/gofeed (grounded in
// lysyi3m-rss-comb's feed-fetch loop).
type GofeedParser struct {
	parser *gofeed.Parser
}

func NewGofeedParser() *GofeedParser {
	return &GofeedParser{parser: gofeed.NewParser()}
}

func (p *GofeedParser) ParseFeed(ctx context.Context, url string) ([]FeedItem, error) {
	feed, err := p.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		published := it.Published
		if it.PublishedParsed != nil {
			published = it.PublishedParsed.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		content := it.Content
		if content == "" {
			content = it.Description
		}
		items = append(items, FeedItem{
			Title:       it.Title,
			Link:        it.Link,
			PublishedAt: published,
			Content:     content,
		})
	}
	return items, nil
}

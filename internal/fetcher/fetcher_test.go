package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

type fakeFeedParser struct {
	items []capability.FeedItem
	err   error
}

func (f *fakeFeedParser) ParseFeed(ctx context.Context, url string) ([]capability.FeedItem, error) {
	return f.items, f.err
}

type fakeMicroblogFetcher struct {
	results map[string][]*domain.Tweet
}

func (f *fakeMicroblogFetcher) FetchUsers(ctx context.Context, usernames []string) (map[string][]*domain.Tweet, error) {
	return f.results, nil
}

func testLogger() logger.Logger { return logger.New(logger.Opts{Env: "development"}) }

func TestRunDropsOldAndUnparseableDates(t *testing.T) {
	now := time.Now().UTC()
	parser := &fakeFeedParser{items: []capability.FeedItem{
		{Title: "fresh", Link: "https://x/1", PublishedAt: now.Format(time.RFC3339)},
		{Title: "stale", Link: "https://x/2", PublishedAt: now.AddDate(0, 0, -30).Format(time.RFC3339)},
		{Title: "bad-date", Link: "https://x/3", PublishedAt: "not-a-date"},
	}}

	out := make(chan *domain.Post, 10)
	stage := NewStage(Config{LookbackDays: 7, GeneralPoolSize: 2}, parser, nil, out, testLogger())

	sources := []Source{{Type: domain.SourceBlog, Name: "blog1", URLOrHandle: "https://feed.example/rss"}}
	if err := stage.Run(context.Background(), sources, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	close(out)

	var got []*domain.Post
	for p := range out {
		got = append(got, p)
	}

	if len(got) != 1 || got[0].Title != "fresh" {
		t.Fatalf("expected only the fresh item to pass the lookback filter, got %+v", got)
	}
}

func TestRunProjectsMicroblogTweetsToPosts(t *testing.T) {
	tweets := map[string][]*domain.Tweet{
		"acct": {{ID: "1", Username: "acct", Text: "hello"}},
	}
	out := make(chan *domain.Post, 10)
	stage := NewStage(Config{}, &fakeFeedParser{}, &fakeMicroblogFetcher{results: tweets}, out, testLogger())

	if err := stage.Run(context.Background(), nil, map[string]string{"acct": "Acct Display"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	close(out)

	var got []*domain.Post
	for p := range out {
		got = append(got, p)
	}
	if len(got) != 1 || got[0].SourceType != domain.SourceMicroblog || got[0].SourceName != "Acct Display" {
		t.Fatalf("unexpected posts: %+v", got)
	}
}

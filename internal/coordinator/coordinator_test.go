package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/internal/enricher"
	"github.com/scwf/prod-scout/internal/fetcher"
	"github.com/scwf/prod-scout/internal/organizer"
	"github.com/scwf/prod-scout/internal/writer"
	"github.com/scwf/prod-scout/pkg/logger"
)

func testLogger() logger.Logger { return logger.New(logger.Opts{Env: "development"}) }

type fakeFeedParser struct{ items []capability.FeedItem }

func (f *fakeFeedParser) ParseFeed(ctx context.Context, url string) ([]capability.FeedItem, error) {
	return f.items, nil
}

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"event":"e","domain":"Others","quality_score":4,"key_info":[]}`, nil
}

func TestRunDrivesAllFourStagesToCompletion(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	feedParser := &fakeFeedParser{items: []capability.FeedItem{
		{Title: "one", Link: "https://blog.example/1", PublishedAt: now, Content: "content one"},
	}}

	dir := t.TempDir()
	cfg := Config{
		Fetcher:   fetcher.Config{LookbackDays: 7, GeneralPoolSize: 2},
		Enricher:  enricher.Config{PoolSize: 1},
		Organizer: organizer.Config{PoolSize: 1, AllowedDomains: []string{"Others"}},
		Writer:    writer.Config{DataDir: dir},
	}
	collab := Collaborators{
		FeedParser: feedParser,
		LLM:        fakeLLM{},
	}

	c := New("20260101_000000", cfg, collab, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := c.Run(ctx, Catalog{
		FeedSources: []fetcher.Source{{Type: domain.SourceBlog, Name: "blog1", URLOrHandle: "https://feed.example/rss"}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.BatchID != "20260101_000000" {
		t.Errorf("unexpected batch id: %q", summary.BatchID)
	}
	if summary.CountsBySourceType["Blog"] != 1 {
		t.Errorf("expected 1 blog post written, got %d", summary.CountsBySourceType["Blog"])
	}
}

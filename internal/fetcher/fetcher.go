// Package fetcher implements the fetch stage: heterogeneous scheduling
// across a general pool (RSS-style sources) and a restricted serial pool
// (microblog sources), pushing normalized Posts downstream.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	pkgerrors "github.com/scwf/prod-scout/pkg/errors"
	"github.com/scwf/prod-scout/pkg/logger"
)

// Source describes one configured feed or account entry.
type Source struct {
	Type       domain.SourceType
	Name       string
	URLOrHandle string
}

// MicroblogFetcher abstracts the scraper subsystem so this package need not
// import internal/scraper directly.
type MicroblogFetcher interface {
	FetchUsers(ctx context.Context, usernames []string) (map[string][]*domain.Tweet, error)
}

// Config carries the fetcher's lookback window and pool sizing.
type Config struct {
	LookbackDays    int
	GeneralPoolSize int
}

// Stage runs the general and restricted pools and writes results to Out.
type Stage struct {
	cfg        Config
	feedParser capability.FeedParser
	microblog  MicroblogFetcher
	log        logger.Logger

	out chan<- *domain.Post
}

func NewStage(cfg Config, feedParser capability.FeedParser, microblog MicroblogFetcher, out chan<- *domain.Post, log logger.Logger) *Stage {
	if cfg.GeneralPoolSize <= 0 {
		cfg.GeneralPoolSize = 5
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	return &Stage{cfg: cfg, feedParser: feedParser, microblog: microblog, out: out, log: log.WithComponent("fetcher")}
}

// Run fetches every configured source: RSS-style sources fanned across a
// bounded worker pool (semaphore pattern), microblog sources serially with
// randomized pacing.
func (s *Stage) Run(ctx context.Context, feedSources []Source, microblogUsernames map[string]string) error {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.cfg.GeneralPoolSize)

	for _, src := range feedSources {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(src Source) {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			s.fetchFeedSource(ctx, src)
		}(src)
	}

	if s.microblog != nil && len(microblogUsernames) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fetchMicroblogSources(ctx, microblogUsernames)
		}()
	}

	wg.Wait()
	return nil
}

func (s *Stage) fetchFeedSource(ctx context.Context, src Source) {
	items, err := s.feedParser.ParseFeed(ctx, src.URLOrHandle)
	if err != nil {
		s.log.Warn("source fetch failed, skipping", "source", src.Name, "error", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.LookbackDays)
	for _, item := range items {
		post, ok := s.normalizeFeedItem(src, item, cutoff)
		if !ok {
			continue
		}
		select {
		case s.out <- post:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stage) normalizeFeedItem(src Source, item capability.FeedItem, cutoff time.Time) (*domain.Post, bool) {
	publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
	if err != nil {
		s.log.Warn("item has unparseable date, dropping", "source", src.Name, "link", item.Link)
		return nil, false
	}
	if publishedAt.Before(cutoff) {
		return nil, false
	}

	return &domain.Post{
		Title:      item.Title,
		Date:       publishedAt.UTC().Format("2006-01-02"),
		Link:       item.Link,
		SourceType: src.Type,
		SourceName: src.Name,
		Content:    item.Content,
	}, true
}

// fetchMicroblogSources drives the restricted serial pool: one blocking
// call into the microblog subsystem, which owns its own inter-user pacing.
func (s *Stage) fetchMicroblogSources(ctx context.Context, usernameToSourceName map[string]string) {
	usernames := make([]string, 0, len(usernameToSourceName))
	for u := range usernameToSourceName {
		usernames = append(usernames, u)
	}

	results, err := s.microblog.FetchUsers(ctx, usernames)
	if err != nil {
		s.log.Warn("microblog fetch aborted", "error", pkgerrors.Wrap(pkgerrors.KindSource, "fetcher", "microblog", err))
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.LookbackDays)
	for username, tweets := range results {
		sourceName := usernameToSourceName[username]
		for _, tweet := range tweets {
			// Tweets without a parsed CreatedAt (zero time) are kept.
			if !tweet.CreatedAt.IsZero() && tweet.CreatedAt.Before(cutoff) {
				continue
			}
			post := tweet.ToPost(sourceName)
			select {
			case s.out <- post:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Package enricher resolves embedded links and linked videos in a Post's
// content into extra_content.
package enricher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
	"github.com/scwf/prod-scout/pkg/ratelimit"
)

// VideoTranscriber abstracts internal/transcriber so this package doesn't
// need to import it directly. batchID scopes the transcript artifacts this
// call writes under data/<batch_id>/raw/.
type VideoTranscriber interface {
	Transcribe(ctx context.Context, batchID, videoURL, sourceName, context string) (string, error)
}

// Config carries the enricher's worker pool size and per-post limits.
type Config struct {
	PoolSize       int
	MaxURLsPerPost int
	URLTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.MaxURLsPerPost <= 0 {
		c.MaxURLsPerPost = 5
	}
	if c.URLTimeout <= 0 {
		c.URLTimeout = 20 * time.Second
	}
	return c
}

// Stage consumes Posts from In and writes enriched Posts to Out. A nil Post
// on In is the cascading shutdown sentinel: one worker exits
// per sentinel received.
type Stage struct {
	cfg         Config
	batchID     string
	renderer    capability.WebRenderer
	transcriber VideoTranscriber
	limiter     ratelimit.Limiter
	log         logger.Logger

	in  <-chan *domain.Post
	out chan<- *domain.Post
}

func NewStage(cfg Config, batchID string, renderer capability.WebRenderer, transcriber VideoTranscriber, limiter ratelimit.Limiter, in <-chan *domain.Post, out chan<- *domain.Post, log logger.Logger) *Stage {
	return &Stage{
		cfg:         cfg.withDefaults(),
		batchID:     batchID,
		renderer:    renderer,
		transcriber: transcriber,
		limiter:     limiter,
		in:          in,
		out:         out,
		log:         log.WithComponent("enricher"),
	}
}

// WorkerCount reports how many sentinels the caller must enqueue to drain
// every worker.
func (s *Stage) WorkerCount() int { return s.cfg.PoolSize }

// Run starts cfg.PoolSize workers and blocks until all have exited (one
// sentinel consumed each).
func (s *Stage) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.PoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (s *Stage) worker(ctx context.Context, workerID int) {
	for post := range s.in {
		if post == nil {
			return // sentinel: this worker's shutdown signal
		}
		s.enrich(ctx, post)
		select {
		case s.out <- post:
		case <-ctx.Done():
			return
		}
	}
}

// enrich mutates post.ExtraContent/ExtraURLs in place; any single URL
// failure is logged and skipped, never aborting the post.
func (s *Stage) enrich(ctx context.Context, post *domain.Post) {
	urls := ExtractURLs(post.Content)
	for _, u := range urls {
		post.AddExtraURL(u)
	}
	post.ExtraURLs = FilterSelfLinks(post.ExtraURLs, string(post.SourceType))

	urls = post.ExtraURLs
	if len(urls) > s.cfg.MaxURLsPerPost {
		s.log.Warn("post exceeds url cap, truncating", "link", post.Link, "count", len(urls), "cap", s.cfg.MaxURLsPerPost)
		urls = urls[:s.cfg.MaxURLsPerPost]
	}

	var sections []string
	for _, u := range urls {
		section, err := s.enrichOne(ctx, u, post)
		if err != nil {
			s.log.Warn("enrichment failed, skipping url", "url", u, "error", err)
			continue
		}
		if section != "" {
			sections = append(sections, section)
		}
	}
	post.ExtraContent = strings.Join(sections, "\n\n")
}

func (s *Stage) enrichOne(ctx context.Context, rawURL string, post *domain.Post) (string, error) {
	if IsVideoURL(rawURL) {
		// Transcription runs under the transcriber's own per-video timeout,
		// not the per-URL timeout below.
		text, err := s.transcriber.Transcribe(ctx, s.batchID, rawURL, post.SourceName, post.Content)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", nil
		}
		return fmt.Sprintf("[Video Transcript]\n%s", text), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.URLTimeout)
	defer cancel()

	if s.limiter != nil {
		if host := hostOf(rawURL); host != "" {
			if err := s.limiter.Wait(callCtx, host); err != nil {
				return "", err
			}
		}
	}

	text, err := s.renderer.Render(callCtx, rawURL)
	if err != nil {
		return "", err
	}
	excerpt := text
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	return fmt.Sprintf("[Embedded: %s]\n%s", hostOf(rawURL), excerpt), nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

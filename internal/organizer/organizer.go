// Package organizer classifies each enriched Post with a single LLM call,
// producing the event/category/domain/quality fields the writer persists.
package organizer

import (
	"context"
	"sync"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
	"github.com/scwf/prod-scout/pkg/retry"
)

const failedQualityReason = "organizer_failed"

// Config carries the organizer's worker pool size, retry budget, and the
// allowed domain/category vocabularies used for validation.
type Config struct {
	PoolSize          int
	RetryOnFailure    int
	LLMTimeout        time.Duration
	AllowedDomains    []string
	AllowedCategories []string
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.RetryOnFailure <= 0 {
		c.RetryOnFailure = 2
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 120 * time.Second
	}
	if len(c.AllowedDomains) == 0 {
		c.AllowedDomains = []string{"Others"}
	}
	return c
}

// Stage consumes enriched Posts from In and writes classified Posts to Out.
// A nil Post on In is the cascading shutdown sentinel: one worker exits per
// sentinel received.
type Stage struct {
	cfg Config
	llm capability.LLMClient
	log logger.Logger

	in  <-chan *domain.Post
	out chan<- *domain.Post
}

func NewStage(cfg Config, llm capability.LLMClient, in <-chan *domain.Post, out chan<- *domain.Post, log logger.Logger) *Stage {
	return &Stage{cfg: cfg.withDefaults(), llm: llm, in: in, out: out, log: log.WithComponent("organizer")}
}

// WorkerCount reports how many sentinels the caller must enqueue to drain
// every worker.
func (s *Stage) WorkerCount() int { return s.cfg.PoolSize }

// Run starts cfg.PoolSize workers and blocks until all have exited.
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
			return
		}
		s.classify(ctx, post)
		select {
		case s.out <- post:
		case <-ctx.Done():
			return
		}
	}
}

// classify mutates post's classification fields in place. On repeated LLM
// or parse failure it marks the post excluded rather than dropping it, so
// every ingested post still reaches the writer.
func (s *Stage) classify(ctx context.Context, post *domain.Post) {
	var result *classification

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = uint64(s.cfg.RetryOnFailure)

	err := retry.Do(ctx, s.log, "organizer.classify", func() error {
		c, err := s.callLLM(ctx, post)
		if err != nil {
			return err
		}
		result = c
		return nil
	}, retryCfg)

	if err != nil {
		s.log.Warn("classification failed after retries, marking excluded", "link", post.Link, "error", err)
		post.QualityScore = 0
		post.QualityReason = failedQualityReason
		post.Event = ""
		post.Category = ""
		post.Domain = ""
		post.KeyInfo = nil
		post.Detail = ""
		return
	}

	result.validate(s.cfg.AllowedDomains)
	post.Event = result.Event
	post.Category = result.Category
	post.Domain = result.Domain
	post.QualityScore = result.QualityScore
	post.QualityReason = result.QualityReason
	post.KeyInfo = result.KeyInfo
	post.Detail = result.Detail
}

func (s *Stage) callLLM(ctx context.Context, post *domain.Post) (*classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	userPrompt := buildUserPrompt(post.Title, post.Date, post.SourceName, post.Content, post.ExtraContent, s.cfg.AllowedDomains, s.cfg.AllowedCategories)
	raw, err := s.llm.Complete(callCtx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return parseClassification(raw)
}

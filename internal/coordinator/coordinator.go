// Package coordinator assembles the fetch, enrich, organize, and write
// stages behind three bounded queues and drives the cascading-sentinel
// shutdown protocol that guarantees every in-flight post is processed
// before the run ends.
package coordinator

import (
	"context"
	"time"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/internal/enricher"
	"github.com/scwf/prod-scout/internal/fetcher"
	"github.com/scwf/prod-scout/internal/organizer"
	"github.com/scwf/prod-scout/internal/writer"
	"github.com/scwf/prod-scout/pkg/logger"
	"github.com/scwf/prod-scout/pkg/ratelimit"
)

// queueCapacity is the recommended bounded-queue capacity for Qf/Qe/Qw.
const queueCapacity = 128

// ShutdownGrace bounds how long a cancelled run has to unwind in-flight I/O
// before the coordinator forcibly discards pipeline state.
const ShutdownGrace = 30 * time.Second

// RunSummary is returned once every stage has drained and the writer has
// emitted its manifest.
type RunSummary struct {
	BatchID            string
	CountsBySourceType map[string]int
	CountsByQuality    map[string]int
	Elapsed            time.Duration
}

// Catalog is the source list a run fetches from.
type Catalog struct {
	FeedSources        []fetcher.Source
	MicroblogUsernames map[string]string // username -> display source name
}

// Collaborators bundles every external dependency the four stages need.
// The caller (internal/app's fx wiring) owns constructing each concrete
// implementation.
type Collaborators struct {
	FeedParser   capability.FeedParser
	Microblog    fetcher.MicroblogFetcher // nil disables the microblog scraper
	WebRenderer  capability.WebRenderer
	Transcriber  enricher.VideoTranscriber
	HostLimiter  ratelimit.Limiter
	LLM          capability.LLMClient
}

// Config carries every stage's tunables in one place.
type Config struct {
	Fetcher   fetcher.Config
	Enricher  enricher.Config
	Organizer organizer.Config
	Writer    writer.Config
}

// Coordinator wires the four stages together for one run.
type Coordinator struct {
	fetcherStage   *fetcher.Stage
	enricherStage  *enricher.Stage
	organizerStage *organizer.Stage
	writerStage    *writer.Stage

	qf chan *domain.Post
	qe chan *domain.Post
	qw chan *domain.Post

	log logger.Logger
}

// New assembles the pipeline for one batch. batchID should already be in
// the YYYYMMDD_HHMMSS format the writer uses for its directory layout.
func New(batchID string, cfg Config, collab Collaborators, log logger.Logger) *Coordinator {
	qf := make(chan *domain.Post, queueCapacity)
	qe := make(chan *domain.Post, queueCapacity)
	qw := make(chan *domain.Post, queueCapacity)

	fetcherStage := fetcher.NewStage(cfg.Fetcher, collab.FeedParser, collab.Microblog, qf, log)
	enricherStage := enricher.NewStage(cfg.Enricher, batchID, collab.WebRenderer, collab.Transcriber, collab.HostLimiter, qf, qe, log)
	organizerStage := organizer.NewStage(cfg.Organizer, collab.LLM, qe, qw, log)
	writerStage := writer.NewStage(cfg.Writer, batchID, qw, log)

	return &Coordinator{
		fetcherStage:   fetcherStage,
		enricherStage:  enricherStage,
		organizerStage: organizerStage,
		writerStage:    writerStage,
		qf:             qf,
		qe:             qe,
		qw:             qw,
		log:            log.WithComponent("coordinator"),
	}
}

// Run executes the cascading-sentinel shutdown protocol:
//  1. await Fetcher completion
//  2. enqueue one sentinel per Enricher worker on Qf, await Enricher exit
//  3. enqueue one sentinel per Organizer worker on Qe, await Organizer exit
//  4. enqueue one sentinel on Qw, await Writer exit (it emits the manifest last)
func (c *Coordinator) Run(ctx context.Context, catalog Catalog) (RunSummary, error) {
	started := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- c.runCascade(ctx, catalog)
	}()

	select {
	case err := <-done:
		if err != nil {
			return RunSummary{}, err
		}
	case <-ctx.Done():
		select {
		case err := <-done:
			if err != nil {
				return RunSummary{}, err
			}
		case <-time.After(ShutdownGrace):
			c.log.Warn("shutdown grace period elapsed, discarding pipeline state")
			return RunSummary{}, ctx.Err()
		}
	}

	return RunSummary{
		BatchID:            c.batchIDOf(),
		CountsBySourceType: c.writerStage.CountsBySourceType(),
		CountsByQuality:    c.writerStage.CountsByBucket(),
		Elapsed:            time.Since(started),
	}, nil
}

// runCascade drives the four stages through the shutdown protocol described
// on Run and reports the writer's terminal error, if any.
func (c *Coordinator) runCascade(ctx context.Context, catalog Catalog) error {
	enricherDone := make(chan struct{})
	go func() {
		c.enricherStage.Run(ctx)
		close(enricherDone)
	}()

	organizerDone := make(chan struct{})
	go func() {
		c.organizerStage.Run(ctx)
		close(organizerDone)
	}()

	writerErr := make(chan error, 1)
	go func() {
		writerErr <- c.writerStage.Run(ctx)
	}()

	if err := c.fetcherStage.Run(ctx, catalog.FeedSources, catalog.MicroblogUsernames); err != nil {
		c.log.Warn("fetcher returned error, proceeding with shutdown", "error", err)
	}

	for i := 0; i < c.enricherStage.WorkerCount(); i++ {
		c.qf <- nil
	}
	<-enricherDone

	for i := 0; i < c.organizerStage.WorkerCount(); i++ {
		c.qe <- nil
	}
	<-organizerDone

	c.qw <- nil
	return <-writerErr
}

func (c *Coordinator) batchIDOf() string {
	return c.writerStage.BatchID()
}

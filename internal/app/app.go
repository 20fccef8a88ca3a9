// Package app wires every collaborator into an fx graph and drives the
// scheduler that repeats pipeline runs on the configured interval.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/internal/config"
	"github.com/scwf/prod-scout/internal/coordinator"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/internal/enricher"
	"github.com/scwf/prod-scout/internal/fetcher"
	"github.com/scwf/prod-scout/internal/notifier"
	"github.com/scwf/prod-scout/internal/organizer"
	"github.com/scwf/prod-scout/internal/scheduler"
	"github.com/scwf/prod-scout/internal/scraper"
	"github.com/scwf/prod-scout/internal/transcriber"
	"github.com/scwf/prod-scout/internal/writer"
	"github.com/scwf/prod-scout/pkg/logger"
	"github.com/scwf/prod-scout/pkg/ratelimit"
)

// ConfigPath is the fx-supplied path to the INI configuration file. cmd
// resolves it from a flag before building the app.
type ConfigPath string

// Once, when true, makes run execute exactly one batch instead of handing
// off to the scheduler.
type Once bool

// ExitCode lets run report a process exit code back to cmd without fx
// treating a partial-failure run as a fatal Start error.
type ExitCode struct {
	mu   sync.Mutex
	code int
}

func (e *ExitCode) set(c int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c > e.code {
		e.code = c
	}
}

// Get returns the highest exit code any run reported.
func (e *ExitCode) Get() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.code
}

func newExitCode() *ExitCode { return &ExitCode{} }

// RootContext is cancelled from an OnStop hook so that a run in progress
// (the scheduler loop or a single batch) observes SIGINT/SIGTERM instead of
// running to completion on a context.Background() that never cancels.
type RootContext context.Context

func newRootContext(lc fx.Lifecycle) RootContext {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return RootContext(ctx)
}

func newConfig(path ConfigPath) (*config.Config, error) {
	return config.Load(string(path))
}

func newRateLimiter() *ratelimit.InMemoryLimiter {
	return ratelimit.NewInMemoryLimiter(1, 2*time.Second, 1)
}

func newWebRenderer(lc fx.Lifecycle) *capability.ChromedpRenderer {
	r := capability.NewChromedpRenderer(20 * time.Second)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			r.Close()
			return nil
		},
	})
	return r
}

func newASRBackend() *capability.WhisperCLIBackend {
	return capability.NewWhisperCLIBackend("whisper")
}

func newLLMClient(cfg *config.Config) *capability.OpenAIClient {
	return capability.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
}

func newTranscriber(asr capability.ASRBackend, llm capability.LLMClient, log logger.Logger) *transcriber.Transcriber {
	return transcriber.New(transcriber.Config{Timeout: 5 * time.Minute, DataDir: "data"}, asr, llm, "yt-dlp", log)
}

// newCredentialPool loads the base credential from the env-style file (if
// configured and present) and appends whatever additional pairs
// x_scraper.auth_credentials supplies on top of it.
func newCredentialPool(cfg *config.Config, log logger.Logger) *scraper.CredentialPool {
	var creds []*domain.Credential
	if cfg.XScraper.CredentialsFile != "" {
		fileCred, err := scraper.LoadCredentialsFromFile(cfg.XScraper.CredentialsFile)
		if err != nil {
			log.Warn("failed to load credentials file", "path", cfg.XScraper.CredentialsFile, "error", err)
		} else if fileCred != nil {
			creds = append(creds, fileCred)
		}
	}
	creds = append(creds, scraper.ParseCredentialsString(cfg.XScraper.AuthCredentials)...)
	return scraper.NewCredentialPool(creds, log)
}

func newScraperClient(pool *scraper.CredentialPool, cfg *config.Config, log logger.Logger) *scraper.Client {
	return scraper.NewClient(pool, scraper.ClientConfig{
		RequestTimeout:          time.Duration(cfg.XScraper.RequestTimeoutSeconds) * time.Second,
		MaxRetries:              cfg.XScraper.MaxRetries,
		CircuitBreakerThreshold: cfg.XScraper.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  time.Duration(cfg.XScraper.CircuitBreakerCooldown) * time.Second,
	}, log)
}

func newMicroblogFetcher(client *scraper.Client, cfg *config.Config, log logger.Logger) *scraper.Scraper {
	return scraper.NewScraper(client, scraper.PaginationConfig{
		MaxTweetsPerUser:   cfg.XScraper.MaxTweetsPerUser,
		IncludeReplies:     cfg.XScraper.IncludeReplies,
		IncludeRetweets:    cfg.XScraper.IncludeRetweets,
		RequestDelayMin:    time.Duration(cfg.XScraper.RequestDelayMinSeconds) * time.Second,
		RequestDelayMax:    time.Duration(cfg.XScraper.RequestDelayMaxSeconds) * time.Second,
		UserSwitchDelayMin: time.Duration(cfg.XScraper.UserSwitchDelayMinSecs) * time.Second,
		UserSwitchDelayMax: time.Duration(cfg.XScraper.UserSwitchDelayMaxSecs) * time.Second,
	}, log)
}

func newNotifier(cfg *config.Config, log logger.Logger) (*notifier.Notifier, error) {
	return notifier.New(cfg.Notifier.TelegramBotToken, cfg.Notifier.TelegramChatID, log)
}

// Module wires every collaborator and hands off to run.
var Module = fx.Options(
	fx.Provide(
		newConfig,
		logger.FxOption,
		newExitCode,
		newRootContext,
	),
	fx.Provide(
		fx.Annotate(capability.NewGofeedParser, fx.As(new(capability.FeedParser))),
		fx.Annotate(newWebRenderer, fx.As(new(capability.WebRenderer))),
		fx.Annotate(newASRBackend, fx.As(new(capability.ASRBackend))),
		fx.Annotate(newLLMClient, fx.As(new(capability.LLMClient))),
		fx.Annotate(newTranscriber, fx.As(new(enricher.VideoTranscriber))),
		fx.Annotate(newRateLimiter, fx.As(new(ratelimit.Limiter))),
	),
	fx.Provide(
		newCredentialPool,
		newScraperClient,
		fx.Annotate(newMicroblogFetcher, fx.As(new(fetcher.MicroblogFetcher))),
	),
	fx.Provide(
		newNotifier,
		scheduler.New,
	),
	fx.Invoke(run),
)

// buildCoordinatorConfig maps the loaded config onto the four stages'
// tunables.
func buildCoordinatorConfig(cfg *config.Config) coordinator.Config {
	return coordinator.Config{
		Fetcher: fetcher.Config{
			LookbackDays:    cfg.Fetcher.LookbackDays,
			GeneralPoolSize: cfg.Fetcher.GeneralPoolSize,
		},
		Enricher: enricher.Config{
			PoolSize:       cfg.Enricher.PoolSize,
			MaxURLsPerPost: cfg.Enricher.MaxURLsPerPost,
			URLTimeout:     time.Duration(cfg.Enricher.URLTimeoutSeconds) * time.Second,
		},
		Organizer: organizer.Config{
			PoolSize:          cfg.Organizer.PoolSize,
			RetryOnFailure:    cfg.Organizer.RetryOnFailure,
			LLMTimeout:        time.Duration(cfg.Organizer.LLMTimeoutSeconds) * time.Second,
			AllowedDomains:    config.SplitList(cfg.Organizer.AllowedDomains),
			AllowedCategories: config.SplitList(cfg.Organizer.AllowedCategories),
		},
		Writer: writer.Config{
			DataDir:  "data",
			Entities: cfg.Entities,
		},
	}
}

// buildCatalog splits config.Sources by source type: blog, video, and
// public-account entries are RSS-style feeds fed through the general pool's
// feed parser; microblog entries are X handles fed through the restricted
// pool's direct scraper.
func buildCatalog(cfg *config.Config) coordinator.Catalog {
	var catalog coordinator.Catalog
	for name, url := range cfg.Sources["blog"] {
		catalog.FeedSources = append(catalog.FeedSources, fetcher.Source{Type: domain.SourceBlog, Name: name, URLOrHandle: url})
	}
	for name, url := range cfg.Sources["video"] {
		catalog.FeedSources = append(catalog.FeedSources, fetcher.Source{Type: domain.SourceVideo, Name: name, URLOrHandle: url})
	}
	for name, url := range cfg.Sources["public_account"] {
		catalog.FeedSources = append(catalog.FeedSources, fetcher.Source{Type: domain.SourcePublicAccount, Name: name, URLOrHandle: url})
	}
	if handles := cfg.Sources["microblog"]; len(handles) > 0 {
		catalog.MicroblogUsernames = map[string]string{}
		for name, handle := range handles {
			catalog.MicroblogUsernames[handle] = name
		}
	}
	return catalog
}

func run(
	lc fx.Lifecycle,
	log logger.Logger,
	cfg *config.Config,
	once Once,
	rootCtx RootContext,
	exitCode *ExitCode,
	feedParser capability.FeedParser,
	microblog fetcher.MicroblogFetcher,
	renderer capability.WebRenderer,
	videoTranscriber enricher.VideoTranscriber,
	limiter ratelimit.Limiter,
	llm capability.LLMClient,
	sched *scheduler.Scheduler,
	notif *notifier.Notifier,
) {
	collab := coordinator.Collaborators{
		FeedParser:  feedParser,
		Microblog:   microblog,
		WebRenderer: renderer,
		Transcriber: videoTranscriber,
		HostLimiter: limiter,
		LLM:         llm,
	}
	coordCfg := buildCoordinatorConfig(cfg)

	runBatch := func(ctx context.Context) {
		batchID := time.Now().UTC().Format("20060102_150405")
		catalog := buildCatalog(cfg)
		coord := coordinator.New(batchID, coordCfg, collab, log)

		started := time.Now()
		summary, err := coord.Run(ctx, catalog)
		if err != nil {
			log.Error("pipeline run failed", "batch", batchID, "error", err)
			notif.NotifyFatal("coordinator", err)
			exitCode.set(3)
			return
		}

		total := 0
		for _, c := range summary.CountsBySourceType {
			total += c
		}
		if total > 0 {
			excludedRate := float64(summary.CountsByQuality[string(domain.BucketExcluded)]) / float64(total)
			if excludedRate > 0.10 {
				notif.NotifyPartialFailure(batchID, excludedRate)
				exitCode.set(2)
			}
		}

		notif.NotifyRunComplete(notifier.RunSummary{
			BatchID:            summary.BatchID,
			CountsBySourceType: summary.CountsBySourceType,
			CountsByBucket:     summary.CountsByQuality,
			Elapsed:            time.Since(started).Round(time.Second).String(),
		})
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
			if bool(once) {
				interval = 0
			}

			if interval == 0 {
				runBatch(context.Context(rootCtx))
				return nil
			}

			go func() {
				if err := sched.Run(context.Context(rootCtx), interval, runBatch); err != nil {
					log.Error("scheduler exited with error", "error", err)
				}
			}()
			return nil
		},
	})
}

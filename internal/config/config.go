// Package config loads the pipeline's INI configuration file and overlays
// secrets from the environment via cleanenv struct tags.
package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/ini.v1"
)

// App carries process-wide, non-domain settings. Env selects the logger's
// console-pretty vs JSON output (pkg/logger.Opts.Env).
type App struct {
	Env       string `env:"APP_ENV" env-default:"production"`
	SentryDSN string `env:"SENTRY_DSN"`
}

type LLM struct {
	APIKey  string `env:"LLM_API_KEY" ini:"api_key"`
	BaseURL string `ini:"base_url"`
	Model   string
}

type XScraper struct {
	Enabled                 bool
	AuthCredentials         string `env:"X_SCRAPER_AUTH_CREDENTIALS"` // pipe-delimited token:csrf pairs
	CredentialsFile         string // env-style file holding TWITTER_AUTH_TOKEN / TWITTER_CT0
	MaxTweetsPerUser        int
	RequestDelayMinSeconds  int
	RequestDelayMaxSeconds  int
	UserSwitchDelayMinSecs  int
	UserSwitchDelayMaxSecs  int
	RequestTimeoutSeconds   int
	MaxRetries              int
	IncludeRetweets         bool
	IncludeReplies          bool
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  int
	QueryIDsJSON            string `ini:"query_ids_json"`
	FeaturesJSON            string `ini:"features_json"`
}

type Fetcher struct {
	LookbackDays    int
	GeneralPoolSize int
}

type Enricher struct {
	PoolSize          int
	MaxURLsPerPost    int `ini:"max_urls_per_post"`
	URLTimeoutSeconds int `ini:"url_timeout_seconds"`
}

type Organizer struct {
	PoolSize          int
	RetryOnFailure    int
	LLMTimeoutSeconds int    `ini:"llm_timeout_seconds"`
	AllowedDomains    string // comma-separated; "Others" is always implicitly allowed
	AllowedCategories string // comma-separated
}

type Notifier struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `ini:"telegram_chat_id"`
}

type Scheduler struct {
	IntervalSeconds int // 0 = run once
}

// Sources maps a display name to a feed URL or account handle, one map per
// source_type ([microblog_accounts] holds X handles for the direct scraper;
// [public_account_accounts], [video_accounts], [blog_accounts] hold feed
// URLs polled through the general RSS pool).
type Sources map[string]map[string]string

// Entities maps a canonical display name to its comma-separated aliases.
type Entities map[string][]string

type Config struct {
	App       App
	LLM       LLM
	XScraper  XScraper
	Fetcher   Fetcher
	Enricher  Enricher
	Organizer Organizer
	Notifier  Notifier
	Scheduler Scheduler
	Sources   Sources
	Entities  Entities
}

func defaults() Config {
	return Config{
		XScraper: XScraper{
			CredentialsFile:         ".env",
			MaxTweetsPerUser:        20,
			RequestDelayMinSeconds:  15,
			RequestDelayMaxSeconds:  25,
			UserSwitchDelayMinSecs:  30,
			UserSwitchDelayMaxSecs:  60,
			RequestTimeoutSeconds:   30,
			MaxRetries:              3,
			CircuitBreakerThreshold: 5,
			CircuitBreakerCooldown:  60,
		},
		Fetcher: Fetcher{
			LookbackDays:    7,
			GeneralPoolSize: 5,
		},
		Enricher: Enricher{
			PoolSize:          5,
			MaxURLsPerPost:    5,
			URLTimeoutSeconds: 20,
		},
		Organizer: Organizer{
			PoolSize:          5,
			RetryOnFailure:    2,
			LLMTimeoutSeconds: 120,
			AllowedDomains:    "AI/ML,DevTools,Infra/Cloud,Frontend/Design,Data,Security,Mobile,Web3,Hardware,Business",
			AllowedCategories: "Launch,Update,Funding,Research,Opinion,Tutorial,Acquisition",
		},
	}
}

// Load reads the INI file at path, applies defaults for anything unset, and
// overlays secrets from the environment via cleanenv. A malformed or missing
// file is a ConfigError-class failure the caller must treat as fatal.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	f.NameMapper = ini.TitleUnderscore // pool_size (INI) <-> PoolSize (Go field)

	cfg := defaults()

	if s := f.Section("app"); s != nil {
		if v := s.Key("env").String(); v != "" {
			cfg.App.Env = v
		}
	}
	if err := f.Section("llm").MapTo(&cfg.LLM); err != nil {
		return nil, fmt.Errorf("config: [llm]: %w", err)
	}
	if err := f.Section("x_scraper").MapTo(&cfg.XScraper); err != nil {
		return nil, fmt.Errorf("config: [x_scraper]: %w", err)
	}
	if err := f.Section("fetcher").MapTo(&cfg.Fetcher); err != nil {
		return nil, fmt.Errorf("config: [fetcher]: %w", err)
	}
	if err := f.Section("enricher").MapTo(&cfg.Enricher); err != nil {
		return nil, fmt.Errorf("config: [enricher]: %w", err)
	}
	if err := f.Section("organizer").MapTo(&cfg.Organizer); err != nil {
		return nil, fmt.Errorf("config: [organizer]: %w", err)
	}
	if err := f.Section("notifier").MapTo(&cfg.Notifier); err != nil {
		return nil, fmt.Errorf("config: [notifier]: %w", err)
	}
	if err := f.Section("scheduler").MapTo(&cfg.Scheduler); err != nil {
		return nil, fmt.Errorf("config: [scheduler]: %w", err)
	}

	cfg.Sources = Sources{}
	for _, sourceType := range []string{"microblog", "public_account", "video", "blog"} {
		sec, err := f.GetSection(sourceType + "_accounts")
		if err != nil {
			continue // section absent, no accounts of this source type
		}
		entries := map[string]string{}
		for _, key := range sec.Keys() {
			entries[key.Name()] = key.String()
		}
		cfg.Sources[sourceType] = entries
	}
	for _, sec := range f.Sections() {
		if name := sec.Name(); strings.HasSuffix(name, "_accounts") {
			if _, ok := cfg.Sources[strings.TrimSuffix(name, "_accounts")]; !ok {
				return nil, fmt.Errorf("config: [%s]: unrecognized source type", name)
			}
		}
	}

	cfg.Entities = Entities{}
	if sec, err := f.GetSection("entities"); err == nil {
		for _, key := range sec.Keys() {
			cfg.Entities[key.Name()] = SplitList(key.String())
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	return &cfg, nil
}

// SplitList parses a comma-separated config value, trimming whitespace and
// dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

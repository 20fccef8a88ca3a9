// Command scraper runs the microblog scraper subsystem in isolation,
// writing one JSON file per fetched user without going through the
// enrich/organize/write pipeline. Useful for debugging credentials, query
// IDs, and pagination independent of the LLM-backed stages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scwf/prod-scout/internal/config"
	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/internal/scraper"
	"github.com/scwf/prod-scout/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.ini", "path to the INI configuration file")
	usersFlag := flag.String("users", "", "comma-separated list of usernames to fetch (defaults to every configured microblog account)")
	flag.Bool("once", true, "accepted for CLI symmetry with cmd/pipeline; this binary always runs a single batch")
	flag.Parse()

	log := logger.New(logger.Opts{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	usernames := resolveUsernames(*usersFlag, cfg)
	if len(usernames) == 0 {
		log.Error("no usernames to fetch: pass -users or configure [microblog_accounts]")
		os.Exit(1)
	}

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
	pool := scraper.NewCredentialPool(creds, log)
	client := scraper.NewClient(pool, scraper.ClientConfig{
		RequestTimeout:          time.Duration(cfg.XScraper.RequestTimeoutSeconds) * time.Second,
		MaxRetries:              cfg.XScraper.MaxRetries,
		CircuitBreakerThreshold: cfg.XScraper.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  time.Duration(cfg.XScraper.CircuitBreakerCooldown) * time.Second,
	}, log)
	s := scraper.NewScraper(client, scraper.PaginationConfig{
		MaxTweetsPerUser:   cfg.XScraper.MaxTweetsPerUser,
		IncludeReplies:     cfg.XScraper.IncludeReplies,
		IncludeRetweets:    cfg.XScraper.IncludeRetweets,
		RequestDelayMin:    time.Duration(cfg.XScraper.RequestDelayMinSeconds) * time.Second,
		RequestDelayMax:    time.Duration(cfg.XScraper.RequestDelayMaxSeconds) * time.Second,
		UserSwitchDelayMin: time.Duration(cfg.XScraper.UserSwitchDelayMinSecs) * time.Second,
		UserSwitchDelayMax: time.Duration(cfg.XScraper.UserSwitchDelayMaxSecs) * time.Second,
	}, log)

	batchID := time.Now().UTC().Format("20060102_150405")
	outDir := filepath.Join("data", "x_scraper_"+batchID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Error("failed to create output directory", "dir", outDir, "error", err)
		os.Exit(1)
	}

	results, err := s.FetchUsers(context.Background(), usernames)
	if err != nil {
		log.Error("scraper run failed", "error", err)
		os.Exit(1)
	}

	for username, tweets := range results {
		if err := writeUserFile(outDir, username, tweets); err != nil {
			log.Error("failed to write user file", "username", username, "error", err)
			continue
		}
		log.Info("wrote tweets", "username", username, "count", len(tweets), "dir", outDir)
	}
}

func resolveUsernames(flagValue string, cfg *config.Config) []string {
	if flagValue != "" {
		var out []string
		for _, u := range strings.Split(flagValue, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	var out []string
	for _, handle := range cfg.Sources["microblog"] {
		out = append(out, handle)
	}
	return out
}

func writeUserFile(dir, username string, tweets []*domain.Tweet) error {
	data, err := json.MarshalIndent(tweets, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, username+".json")
	return os.WriteFile(path, data, 0o644)
}

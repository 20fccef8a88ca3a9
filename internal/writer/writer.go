// Package writer persists classified Posts to disk in the canonical
// By-Domain/By-Entity layout and writes the batch manifest once every post
// has landed.
package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

// Config carries the data root and the entity vocabulary used for
// By-Entity classification.
type Config struct {
	DataDir  string // defaults to "data"
	Entities map[string][]string
}

func (c Config) withDefaults() Config {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	return c
}

// Stage is the single-threaded consumer of the classification queue. No
// parallelism: writes are cheap and serialization keeps disk state and the
// in-memory counters consistent without locking.
type Stage struct {
	cfg     Config
	batchID string
	matcher *entityMatcher
	log     logger.Logger

	in <-chan *domain.Post

	startedAt time.Time

	countsBySourceType map[string]int
	countsByBucket     map[string]int
	countsByDomain     map[string]int
	countsByEntity     map[string]int

	errorsLog []string
	cancelled bool
}

func NewStage(cfg Config, batchID string, in <-chan *domain.Post, log logger.Logger) *Stage {
	return &Stage{
		cfg:                cfg.withDefaults(),
		batchID:            batchID,
		matcher:            newEntityMatcher(cfg.Entities),
		in:                 in,
		log:                log.WithComponent("writer"),
		countsBySourceType: map[string]int{},
		countsByBucket:     map[string]int{},
		countsByDomain:     map[string]int{},
		countsByEntity:     map[string]int{},
	}
}

// BatchID returns the batch this stage is writing.
func (s *Stage) BatchID() string { return s.batchID }

// CountsBySourceType returns the final per-source-type tally. Only
// meaningful after Run has returned.
func (s *Stage) CountsBySourceType() map[string]int { return s.countsBySourceType }

// CountsByBucket returns the final per-quality-bucket tally. Only
// meaningful after Run has returned.
func (s *Stage) CountsByBucket() map[string]int { return s.countsByBucket }

// Run drains In until the sentinel arrives or ctx is cancelled, writing
// each post as it goes, then writes the manifest and the latest-batch
// pointer last. A cancellation mid-run is recorded in the manifest's
// Cancelled field rather than discarding what was already written.
func (s *Stage) Run(ctx context.Context) error {
	s.startedAt = time.Now().UTC()

loop:
	for {
		select {
		case post, ok := <-s.in:
			if !ok || post == nil {
				break loop
			}
			if err := s.writePost(post); err != nil {
				s.log.Warn("failed to write post", "link", post.Link, "error", err)
				s.errorsLog = append(s.errorsLog, fmt.Sprintf("%s: %s: %v", time.Now().UTC().Format(time.RFC3339), post.Link, err))
			}
		case <-ctx.Done():
			s.log.Warn("writer cancelled mid-run", "error", ctx.Err())
			s.cancelled = true
			break loop
		}
	}

	if err := s.writeErrorsLog(); err != nil {
		s.log.Warn("failed to write errors.log", "error", err)
	}
	if err := s.writeManifest(); err != nil {
		return fmt.Errorf("writer: manifest: %w", err)
	}
	if err := s.writeLatestBatchPointer(); err != nil {
		return fmt.Errorf("writer: latest_batch pointer: %w", err)
	}
	return nil
}

func (s *Stage) writePost(post *domain.Post) error {
	post.ContentHash = contentHash(post.Link)
	bucket := post.Bucket()
	domainName := post.Domain
	if domainName == "" {
		domainName = "Others"
	}

	filename := fmt.Sprintf("%s_%s_%s.md", post.SourceName, post.Date, post.ContentHash)
	content := renderMarkdown(post)

	domainPath := filepath.Join(s.cfg.DataDir, s.batchID, "By-Domain", domainName, string(bucket), filename)
	if err := writeFile(domainPath, content); err != nil {
		return err
	}

	entities := s.matcher.Match(post.Content, post.ExtraContent, post.SourceName)
	for _, entity := range entities {
		entityPath := filepath.Join(s.cfg.DataDir, s.batchID, "By-Entity", entity, filename)
		if err := writeFile(entityPath, content); err != nil {
			return err
		}
		s.countsByEntity[entity]++
	}

	s.countsBySourceType[string(post.SourceType)]++
	s.countsByBucket[string(bucket)]++
	s.countsByDomain[domainName]++
	return nil
}

// writeFile writes content to path, retrying once on failure before giving
// up: a WriteError is retried once, then logged and dropped.
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	err := os.WriteFile(path, []byte(content), 0o644)
	if err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// contentHash returns the first 6 hex characters of link's sha256 digest,
// giving each post a short, stable, collision-resistant filename suffix.
func contentHash(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])[:6]
}

func (s *Stage) writeManifest() error {
	manifest := Manifest{
		BatchID:            s.batchID,
		StartedAt:          s.startedAt.Format(time.RFC3339),
		EndedAt:            time.Now().UTC().Format(time.RFC3339),
		Cancelled:          s.cancelled,
		CountsBySourceType: s.countsBySourceType,
		CountsByBucket:     s.countsByBucket,
		CountsByDomain:     s.countsByDomain,
		CountsByEntity:     s.countsByEntity,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.cfg.DataDir, s.batchID, "batch_manifest.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Stage) writeLatestBatchPointer() error {
	pointer := LatestBatchPointer{
		BatchID: s.batchID,
		Path:    filepath.Join(s.cfg.DataDir, s.batchID),
	}
	data, err := json.MarshalIndent(pointer, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.cfg.DataDir, "latest_batch.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Stage) writeErrorsLog() error {
	if len(s.errorsLog) == 0 {
		return nil
	}
	path := filepath.Join(s.cfg.DataDir, s.batchID, "errors.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := ""
	for _, line := range s.errorsLog {
		content += line + "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

package scraper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(logger.Opts{Env: "development"})
}

func TestParseCredentialsString(t *testing.T) {
	creds := ParseCredentialsString("tok1:csrf1|tok2:csrf2")
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, want 2", len(creds))
	}
	if creds[0].AuthToken != "tok1" || creds[0].CSRFToken != "csrf1" {
		t.Errorf("unexpected first credential: %+v", creds[0])
	}
}

func TestCredentialPoolSkipsCoolingAndDisabled(t *testing.T) {
	a := &domain.Credential{AuthToken: "aaaa1111"}
	b := &domain.Credential{AuthToken: "bbbb2222", CooldownUntil: time.Now().Add(time.Hour).Unix()}
	c := &domain.Credential{AuthToken: "cccc3333", IsDisabled: true}
	pool := NewCredentialPool([]*domain.Credential{c, a, b}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := pool.GetNext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != a {
		t.Errorf("expected the enabled, non-cooling credential to be returned")
	}
}

func TestCredentialPoolPrefersLowestFailureCount(t *testing.T) {
	a := &domain.Credential{AuthToken: "aaaa1111", FailureCount: 3}
	b := &domain.Credential{AuthToken: "bbbb2222", FailureCount: 0}
	pool := NewCredentialPool([]*domain.Credential{a, b}, testLogger())

	got, err := pool.GetNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != b {
		t.Errorf("expected the credential with the lower failure count, got %s", got.MaskedToken())
	}
}

func TestCredentialPoolTiesBreakOnOldestLastUsed(t *testing.T) {
	now := time.Now().Unix()
	a := &domain.Credential{AuthToken: "aaaa1111", LastUsed: now}
	b := &domain.Credential{AuthToken: "bbbb2222", LastUsed: now - 100}
	pool := NewCredentialPool([]*domain.Credential{a, b}, testLogger())

	got, err := pool.GetNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != b {
		t.Errorf("expected the credential used longest ago, got %s", got.MaskedToken())
	}
}

func TestCredentialPoolAllDisabled(t *testing.T) {
	a := &domain.Credential{AuthToken: "aaaa1111", IsDisabled: true}
	pool := NewCredentialPool([]*domain.Credential{a}, testLogger())

	_, err := pool.GetNext(context.Background())
	if err != ErrAllCredentialsDisabled {
		t.Errorf("expected ErrAllCredentialsDisabled, got %v", err)
	}
}

func TestCredentialPoolStatusMasksTokens(t *testing.T) {
	a := &domain.Credential{AuthToken: "supersecrettoken", CSRFToken: "csrf"}
	pool := NewCredentialPool([]*domain.Credential{a}, testLogger())

	status := pool.Status()
	if len(status) != 1 {
		t.Fatalf("got %d status entries, want 1", len(status))
	}
	if strings.Contains(status[0].MaskedToken, "supersecrettoken") {
		t.Error("masked token must not contain the full auth token")
	}
	if !strings.HasPrefix(status[0].MaskedToken, "supe") {
		t.Errorf("masked token should keep first 4 chars, got %s", status[0].MaskedToken)
	}
}

func TestLoadCredentialsFromFileParsesExactKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TWITTER_AUTH_TOKEN=filetoken\nTWITTER_CT0=filecsrf\n# comment\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cred, err := LoadCredentialsFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred == nil || cred.AuthToken != "filetoken" || cred.CSRFToken != "filecsrf" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestLoadCredentialsFromFileAcceptsXCSRFAlias(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "TWITTER_AUTH_TOKEN=filetoken\nXCSRF_TOKEN=aliascsrf\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cred, err := LoadCredentialsFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred == nil || cred.CSRFToken != "aliascsrf" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestLoadCredentialsFromFileMissingFileIsNotAnError(t *testing.T) {
	cred, err := LoadCredentialsFromFile(filepath.Join(t.TempDir(), "does-not-exist.env"))
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if cred != nil {
		t.Fatalf("expected nil credential, got %+v", cred)
	}
}

func TestReportRateLimitedSetsCooldown(t *testing.T) {
	a := &domain.Credential{AuthToken: "aaaa1111"}
	pool := NewCredentialPool([]*domain.Credential{a}, testLogger())

	pool.ReportRateLimited(a, 0)

	if a.CooldownUntil <= time.Now().Unix() {
		t.Error("expected cooldown_until to be set to a default of 900s in the future")
	}
	if a.CooldownUntil > time.Now().Add(901*time.Second).Unix() {
		t.Error("default cooldown should be 900s")
	}
}

// Package scraper implements the microblog direct-scraper subsystem: a
// credential-pool-managed GraphQL client with circuit breaking, retry-after
// handling, cursor pagination, and response parsing.
package scraper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

// DefaultCooldownSeconds is applied when a 429 response carries no usable
// Retry-After header.
const DefaultCooldownSeconds = 900

// ErrAllCredentialsDisabled is raised when every credential in the pool has
// been permanently disabled; callers treat this as a fatal-to-the-scraper
// (not fatal-to-the-pipeline) condition.
var ErrAllCredentialsDisabled = fmt.Errorf("scraper: all credentials disabled")

// CredentialPool serializes access to a set of Credentials behind a single
// mutex, the only mutable shared state the scraper subsystem carries.
type CredentialPool struct {
	mu          sync.Mutex
	credentials []*domain.Credential
	log         logger.Logger
}

// NewCredentialPool builds a pool from parsed credentials. It never mutates
// the slice it's given; callers own the backing Credential values.
func NewCredentialPool(creds []*domain.Credential, log logger.Logger) *CredentialPool {
	return &CredentialPool{credentials: creds, log: log.WithComponent("credential_pool")}
}

// ParseCredentialsString parses the pipe-delimited
// "token:csrf|token2:csrf2" format.
func ParseCredentialsString(s string) []*domain.Credential {
	var creds []*domain.Credential
	for _, pair := range strings.Split(s, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		creds = append(creds, &domain.Credential{
			AuthToken: strings.TrimSpace(parts[0]),
			CSRFToken: strings.TrimSpace(parts[1]),
		})
	}
	return creds
}

// LoadCredentialsFromFile reads TWITTER_AUTH_TOKEN and TWITTER_CT0 (alias
// XCSRF_TOKEN) from an environment-style KEY=VALUE file and returns the
// single credential they describe. A missing file is not an error: it
// returns (nil, nil) so callers can treat "no file configured" the same as
// "file configured but absent".
func LoadCredentialsFromFile(path string) (*domain.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scraper: read credentials file: %w", err)
	}

	values := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		values[key] = val
	}

	authToken := values["TWITTER_AUTH_TOKEN"]
	csrfToken := values["TWITTER_CT0"]
	if csrfToken == "" {
		csrfToken = values["XCSRF_TOKEN"]
	}
	if authToken == "" || csrfToken == "" {
		return nil, nil
	}
	return &domain.Credential{AuthToken: authToken, CSRFToken: csrfToken}, nil
}

// GetNext returns the credential with the lowest FailureCount, breaking
// ties by the oldest LastUsed, skipping cooling or disabled ones. If every
// credential is cooling, it blocks until the earliest cooldown expires or
// ctx is done. If every credential is disabled, it returns
// ErrAllCredentialsDisabled.
func (p *CredentialPool) GetNext(ctx context.Context) (*domain.Credential, error) {
	for {
		cred, waitUntil, allDisabled := p.tryNext()
		if cred != nil {
			return cred, nil
		}
		if allDisabled {
			return nil, ErrAllCredentialsDisabled
		}

		wait := time.Until(waitUntil)
		if wait <= 0 {
			wait = time.Second
		}
		p.log.Warn("all credentials cooling, waiting", "wait", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryNext picks the best eligible credential by (lowest FailureCount,
// oldest LastUsed), a weighted round-robin that favors credentials with a
// cleaner recent history over a plain cursor sweep.
func (p *CredentialPool) tryNext() (best *domain.Credential, earliestCooldown time.Time, allDisabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().Unix()
	allDisabled = true
	var earliest int64 = -1

	for _, c := range p.credentials {
		if c.IsDisabled {
			continue
		}
		allDisabled = false
		if c.CooldownUntil > now {
			if earliest == -1 || c.CooldownUntil < earliest {
				earliest = c.CooldownUntil
			}
			continue
		}
		if best == nil || c.FailureCount < best.FailureCount ||
			(c.FailureCount == best.FailureCount && c.LastUsed < best.LastUsed) {
			best = c
		}
	}

	if best != nil {
		best.RequestCount++
		best.LastUsed = now
		return best, time.Time{}, false
	}
	if allDisabled {
		return nil, time.Time{}, true
	}
	if earliest == -1 {
		earliest = now + 1
	}
	return nil, time.Unix(earliest, 0), false
}

// ReportRateLimited cools the credential down and records a soft fault.
func (p *CredentialPool) ReportRateLimited(cred *domain.Credential, cooldownSeconds int) {
	if cooldownSeconds <= 0 {
		cooldownSeconds = DefaultCooldownSeconds
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cred.CooldownUntil = time.Now().Unix() + int64(cooldownSeconds)
	cred.FailureCount++
	p.log.Warn("credential rate limited", "token", cred.MaskedToken(), "cooldown_s", cooldownSeconds)
}

// ReportAuthFailure permanently disables a credential.
func (p *CredentialPool) ReportAuthFailure(cred *domain.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cred.IsDisabled = true
	p.log.Warn("credential auth failure, disabling", "token", cred.MaskedToken())
}

// ReportSuccess decrements the credential's failure count, floored at 0.
func (p *CredentialPool) ReportSuccess(cred *domain.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cred.FailureCount > 0 {
		cred.FailureCount--
	}
}

// CredentialStatus is the masked, read-only view returned by Status.
type CredentialStatus struct {
	MaskedToken   string
	IsDisabled    bool
	IsCooling     bool
	RequestCount  int
	FailureCount  int
	CooldownUntil int64
}

// Status returns a per-credential snapshot with tokens masked to their
// first 4 characters.
func (p *CredentialPool) Status() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().Unix()
	out := make([]CredentialStatus, 0, len(p.credentials))
	for _, c := range p.credentials {
		out = append(out, CredentialStatus{
			MaskedToken:   c.MaskedToken(),
			IsDisabled:    c.IsDisabled,
			IsCooling:     c.CooldownUntil > now,
			RequestCount:  c.RequestCount,
			FailureCount:  c.FailureCount,
			CooldownUntil: c.CooldownUntil,
		})
	}
	return out
}

package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/scwf/prod-scout/internal/domain"
	pkgerrors "github.com/scwf/prod-scout/pkg/errors"
	"github.com/scwf/prod-scout/pkg/logger"
	"github.com/scwf/prod-scout/pkg/retry"
)

const graphQLBase = "https://x.com/i/api/graphql"

// webBearerToken is the fixed public bearer token shared by every logged-in
// X web client (extracted from the front-end JS bundle, not a secret).
const webBearerToken = "Bearer AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

var defaultQueryIDs = map[string]string{
	"UserByScreenName": "xmU6X_CKVnQ5lSrCbAmJsg",
	"UserTweets":       "E3opETHurmVJflFsUBVuUQ",
}

// defaultFeatures mirrors the ~20 platform feature flags the front end
// sends; kept as a map so config can override individual entries.
var defaultFeatures = map[string]any{
	"rweb_tipjar_consumption_enabled":                                        true,
	"responsive_web_graphql_exclude_directive_enabled":                       true,
	"verified_phone_label_enabled":                                           false,
	"creator_subscriptions_tweet_preview_api_enabled":                        true,
	"responsive_web_graphql_timeline_navigation_enabled":                     true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":      false,
	"communities_web_enable_tweet_community_results_fetch":                   true,
	"articles_preview_enabled":                                               true,
	"responsive_web_edit_tweet_api_enabled":                                  true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":             true,
	"view_counts_everywhere_api_enabled":                                     true,
	"longform_notetweets_consumption_enabled":                                true,
	"responsive_web_twitter_article_tweet_consumption_enabled":               true,
	"tweet_awards_web_tipping_enabled":                                       false,
	"creator_subscriptions_quote_tweet_preview_enabled":                      false,
	"freedom_of_speech_not_reach_fetch_enabled":                              true,
	"standardized_nudges_misinfo":                                            true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"rweb_video_timestamps_enabled":                                          true,
	"longform_notetweets_rich_text_read_enabled":                             true,
	"longform_notetweets_inline_media_enabled":                               true,
	"responsive_web_enhance_cards_enabled":                                   false,
}

var defaultFieldToggles = map[string]any{
	"withArticlePlainText": false,
}

// desktopChromeProfiles rotates UA strings to look like a mainstream
// browser; no JA3 impersonation library exists in the corpus, so the client
// relies on header/UA realism alone (documented stdlib exception).
var desktopChromeProfiles = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// ClientConfig configures a Client, sourced from config's [x_scraper]
// section.
type ClientConfig struct {
	RequestTimeout          time.Duration
	MaxRetries              int
	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration
	QueryIDs                map[string]string
	Features                map[string]any
	Transport               http.RoundTripper // nil uses http.DefaultTransport; overridden in tests
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 60 * time.Second
	}
	queryIDs := map[string]string{}
	for k, v := range defaultQueryIDs {
		queryIDs[k] = v
	}
	for k, v := range c.QueryIDs {
		queryIDs[k] = v
	}
	c.QueryIDs = queryIDs

	features := map[string]any{}
	for k, v := range defaultFeatures {
		features[k] = v
	}
	for k, v := range c.Features {
		features[k] = v
	}
	c.Features = features
	return c
}

// Client is the GraphQL client for X's internal timeline API,
// credential-pool-aware and circuit-breaker-protected.
type Client struct {
	pool       *CredentialPool
	http       *http.Client
	cfg        ClientConfig
	log        logger.Logger
	userIDCache map[string]string

	cbConsecutiveFailures int
	cbOpenUntil           time.Time
}

func NewClient(pool *CredentialPool, cfg ClientConfig, log logger.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		pool:        pool,
		http:        &http.Client{Timeout: cfg.RequestTimeout, Transport: cfg.Transport},
		cfg:         cfg,
		log:         log.WithComponent("x_client"),
		userIDCache: map[string]string{},
	}
}

// GetUserID resolves a screen name to its rest_id via the UserByScreenName
// endpoint, caching results for the client's lifetime.
func (c *Client) GetUserID(ctx context.Context, username string) (string, error) {
	if id, ok := c.userIDCache[username]; ok {
		return id, nil
	}

	variables := map[string]any{
		"screen_name":              username,
		"withSafetyModeUserFields": true,
	}
	queryID := c.cfg.QueryIDs["UserByScreenName"]
	reqURL := fmt.Sprintf("%s/%s/UserByScreenName", graphQLBase, queryID)

	body, err := c.requestWithRetry(ctx, reqURL, variables)
	if err != nil {
		return "", err
	}

	result := gjson.GetBytes(body, "data.user.result")
	if !result.Exists() {
		return "", pkgerrors.New(pkgerrors.KindSource, "scraper", username, "user not found")
	}
	if result.Get("__typename").String() == "UserUnavailable" {
		return "", pkgerrors.New(pkgerrors.KindSource, "scraper", username, "user unavailable")
	}
	id := result.Get("rest_id").String()
	if id == "" {
		return "", pkgerrors.New(pkgerrors.KindSource, "scraper", username, "missing rest_id")
	}
	c.userIDCache[username] = id
	return id, nil
}

// GetUserTweets fetches one timeline page via the UserTweets endpoint and
// returns every tweet on the page, unfiltered. Reply and retweet exclusion
// are business filters applied by the caller after the page's date-based
// termination check, never before it.
func (c *Client) GetUserTweets(ctx context.Context, userID string, count int, cursor string) ([]*domain.Tweet, string, error) {
	if count <= 0 || count > 100 {
		count = 20
	}

	variables := map[string]any{
		"userId":                              userID,
		"count":                               count,
		"includePromotedContent":              false,
		"withQuickPromoteEligibilityTweetFields": true,
		"withVoice":                            true,
		"withV2Timeline":                       true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	queryID := c.cfg.QueryIDs["UserTweets"]
	reqURL := fmt.Sprintf("%s/%s/UserTweets", graphQLBase, queryID)

	body, err := c.requestWithRetry(ctx, reqURL, variables)
	if err != nil {
		return nil, "", err
	}

	tweets, nextCursor := ParseTimeline(body)
	return tweets, nextCursor, nil
}

// requestWithRetry applies credential rotation, circuit breaking, and
// exponential backoff with jitter (via pkg/retry) around a single GraphQL
// call.
func (c *Client) requestWithRetry(ctx context.Context, reqURL string, variables map[string]any) ([]byte, error) {
	if err := c.awaitCircuitBreaker(ctx); err != nil {
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = uint64(c.cfg.MaxRetries)

	var body []byte
	err := retry.Do(ctx, c.log, "scraper.request", func() error {
		cred, err := c.pool.GetNext(ctx)
		if err != nil {
			return backoff.Permanent(pkgerrors.Wrap(pkgerrors.KindAuthFailure, "scraper", "", err))
		}

		b, err := c.doRequest(ctx, reqURL, variables, cred)
		if err == nil {
			c.pool.ReportSuccess(cred)
			c.recordSuccess()
			body = b
			return nil
		}

		switch pkgerrors.GetKind(err) {
		case pkgerrors.KindRateLimited:
			c.pool.ReportRateLimited(cred, retryAfterSeconds(err))
		case pkgerrors.KindAuthFailure:
			c.pool.ReportAuthFailure(cred)
		}
		if c.recordFailure() {
			return backoff.Permanent(pkgerrors.New(pkgerrors.KindCircuitOpen, "scraper", "", "circuit breaker tripped"))
		}
		return err
	}, retryCfg)

	if err != nil {
		return nil, fmt.Errorf("scraper: request failed (max %d retries): %w", c.cfg.MaxRetries, err)
	}
	return body, nil
}

// buildVariablesJSON assembles the GraphQL variables document one field at
// a time so a single malformed value can't corrupt the whole payload the
// way a failed json.Marshal on the full map would.
func buildVariablesJSON(variables map[string]any) []byte {
	doc := []byte("{}")
	for k, v := range variables {
		if updated, err := sjson.SetBytes(doc, k, v); err == nil {
			doc = updated
		}
	}
	return doc
}

func (c *Client) doRequest(ctx context.Context, reqURL string, variables map[string]any, cred *domain.Credential) ([]byte, error) {
	varsJSON := buildVariablesJSON(variables)
	featuresJSON, _ := json.Marshal(c.cfg.Features)
	togglesJSON, _ := json.Marshal(defaultFieldToggles)

	q := url.Values{}
	q.Set("variables", string(varsJSON))
	q.Set("features", string(featuresJSON))
	q.Set("fieldToggles", string(togglesJSON))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	ua := desktopChromeProfiles[rand.Intn(len(desktopChromeProfiles))]
	req.Header.Set("authorization", webBearerToken)
	req.Header.Set("x-csrf-token", cred.CSRFToken)
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-client-language", "en")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("user-agent", ua)
	req.Header.Set("accept", "*/*")
	req.Header.Set("accept-language", "en-US,en;q=0.9")
	req.Header.Set("referer", "https://x.com/")
	req.Header.Set("origin", "https://x.com")
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: cred.AuthToken})
	req.AddCookie(&http.Cookie{Name: "ct0", Value: cred.CSRFToken})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindSource, "scraper", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindSource, "scraper", "", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return c.checkBusinessErrors(body)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, rateLimitedError(retryAfter)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pkgerrors.New(pkgerrors.KindAuthFailure, "scraper", "", fmt.Sprintf("http %d", resp.StatusCode))
	default:
		return nil, pkgerrors.New(pkgerrors.KindSource, "scraper", "", fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
}

// checkBusinessErrors handles a 200 response carrying a GraphQL "errors"
// array: no "data" alongside it is a business error, both present is a
// partial success (logged, not failed).
func (c *Client) checkBusinessErrors(body []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(body)
	errs := parsed.Get("errors")
	hasData := parsed.Get("data").Exists()

	if !errs.IsArray() || len(errs.Array()) == 0 {
		return body, nil
	}
	first := errs.Array()[0]
	code := first.Get("code").Int()
	msg := first.Get("message").String()

	if !hasData {
		if code == 88 {
			return nil, rateLimitedError(0)
		}
		if code == 32 || code == 64 || code == 89 {
			return nil, pkgerrors.New(pkgerrors.KindAuthFailure, "scraper", "", msg)
		}
		return nil, pkgerrors.New(pkgerrors.KindSource, "scraper", "", "graphql error: "+msg)
	}

	c.log.Warn("graphql partial success", "message", msg)
	return body, nil
}

func rateLimitedError(retryAfterSeconds int) error {
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = DefaultCooldownSeconds
	}
	return pkgerrors.Wrap(pkgerrors.KindRateLimited, "scraper", "", &rateLimitError{seconds: retryAfterSeconds})
}

type rateLimitError struct{ seconds int }

func (e *rateLimitError) Error() string { return fmt.Sprintf("rate limited, retry after %ds", e.seconds) }

func retryAfterSeconds(err error) int {
	var rle *rateLimitError
	if pkgerrors.As(err, &rle) {
		return rle.seconds
	}
	return DefaultCooldownSeconds
}

func parseRetryAfter(header string) int {
	if header == "" {
		return DefaultCooldownSeconds
	}
	n, err := strconv.Atoi(header)
	if err != nil {
		return DefaultCooldownSeconds
	}
	return n
}

func (c *Client) awaitCircuitBreaker(ctx context.Context) error {
	if c.cbOpenUntil.IsZero() {
		return nil
	}
	remaining := time.Until(c.cbOpenUntil)
	if remaining <= 0 {
		c.cbOpenUntil = time.Time{}
		return nil
	}
	c.log.Warn("circuit breaker open, waiting", "remaining", remaining.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
	}
	c.cbOpenUntil = time.Time{}
	return nil
}

func (c *Client) recordSuccess() {
	c.cbConsecutiveFailures = 0
	c.cbOpenUntil = time.Time{}
}

// recordFailure returns true if this failure tripped the breaker.
func (c *Client) recordFailure() bool {
	c.cbConsecutiveFailures++
	if c.cbConsecutiveFailures >= c.cfg.CircuitBreakerThreshold {
		c.cbOpenUntil = time.Now().Add(c.cfg.CircuitBreakerCooldown)
		c.log.Error("circuit breaker tripped", "consecutive_failures", c.cbConsecutiveFailures)
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

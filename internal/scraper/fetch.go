package scraper

import (
	"context"
	"math/rand"
	"time"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

// PaginationConfig carries the pacing and filtering knobs for the
// paginated timeline fetch.
type PaginationConfig struct {
	MaxTweetsPerUser     int
	SinceDate            time.Time // zero means no lower bound
	IncludeReplies       bool
	IncludeRetweets      bool
	RequestDelayMin      time.Duration
	RequestDelayMax      time.Duration
	UserSwitchDelayMin   time.Duration
	UserSwitchDelayMax   time.Duration
}

// timelineClient is the subset of *Client's behavior the pagination loop
// depends on. Naming it lets fetch_test.go fake timeline pages directly
// instead of driving a real HTTP round trip through *Client.
type timelineClient interface {
	GetUserID(ctx context.Context, username string) (string, error)
	GetUserTweets(ctx context.Context, userID string, count int, cursor string) ([]*domain.Tweet, string, error)
}

// Scraper drives the paginated fetch loop for one or more users, on top of
// a Client and CredentialPool.
type Scraper struct {
	client timelineClient
	cfg    PaginationConfig
	log    logger.Logger
}

func NewScraper(client timelineClient, cfg PaginationConfig, log logger.Logger) *Scraper {
	return &Scraper{client: client, cfg: cfg, log: log.WithComponent("x_paginated_fetch")}
}

// FetchUser resolves username to a user_id and pages through its timeline
// until the tweet cap is hit, a page has nothing newer than the cutoff, or
// the cursor runs out.
func (s *Scraper) FetchUser(ctx context.Context, username string) ([]*domain.Tweet, error) {
	userID, err := s.client.GetUserID(ctx, username)
	if err != nil {
		return nil, err
	}

	var all []*domain.Tweet
	seen := map[string]struct{}{}
	cursor := ""
	page := 0

	for len(all) < s.cfg.MaxTweetsPerUser {
		page++
		perPage := 20
		if remaining := s.cfg.MaxTweetsPerUser - len(all); remaining < perPage {
			perPage = remaining
		}

		tweets, nextCursor, err := s.client.GetUserTweets(ctx, userID, perPage, cursor)
		if err != nil {
			return all, err
		}

		if len(tweets) == 0 {
			s.log.Info("page returned no tweets, stopping pagination", "user", username, "page", page)
			break
		}

		// Termination is evaluated on date alone, over every tweet on the
		// page, before any business filter (reply/retweet exclusion) runs.
		pageHasNewEnough := false
		for _, t := range tweets {
			if s.cfg.SinceDate.IsZero() || !t.CreatedAt.Before(s.cfg.SinceDate) {
				pageHasNewEnough = true
				break
			}
		}

		for _, t := range tweets {
			inDateRange := s.cfg.SinceDate.IsZero() || !t.CreatedAt.Before(s.cfg.SinceDate)
			if !inDateRange {
				continue
			}
			if !s.cfg.IncludeReplies && t.IsReply() && !t.IsSelfReply() {
				continue
			}
			if !s.cfg.IncludeRetweets && t.IsRetweet {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			all = append(all, t)
			if len(all) >= s.cfg.MaxTweetsPerUser {
				break
			}
		}

		if len(all) >= s.cfg.MaxTweetsPerUser {
			break
		}
		if !pageHasNewEnough {
			s.log.Info("page entirely before cutoff, stopping pagination", "user", username, "page", page)
			break
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor

		if err := sleepUniform(ctx, s.cfg.RequestDelayMin, s.cfg.RequestDelayMax); err != nil {
			return all, err
		}
	}

	return all, nil
}

// FetchUsers fetches each username serially, pausing
// Uniform[user_switch_delay_min, user_switch_delay_max] between users.
func (s *Scraper) FetchUsers(ctx context.Context, usernames []string) (map[string][]*domain.Tweet, error) {
	results := make(map[string][]*domain.Tweet, len(usernames))
	for i, username := range usernames {
		tweets, err := s.FetchUser(ctx, username)
		if err != nil {
			s.log.Warn("user fetch failed, skipping", "user", username, "error", err)
			continue
		}
		results[username] = tweets

		if i < len(usernames)-1 {
			if err := sleepUniform(ctx, s.cfg.UserSwitchDelayMin, s.cfg.UserSwitchDelayMax); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func sleepUniform(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		max = min + time.Millisecond
	}
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

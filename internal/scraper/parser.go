package scraper

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scwf/prod-scout/internal/domain"
)

// twitterDateFormat is X's fixed created_at format: "Mon Feb 10 12:34:56 +0000 2026".
const twitterDateFormat = "Mon Jan 02 15:04:05 -0700 2006"

// ParseTimeline parses a UserTweets GraphQL response into (tweets,
// next_cursor), traversing every instruction/entry shape and de-duplicating
// tweets seen across sections. Parsing is pure and side-effect free: the
// same input always yields the same output.
func ParseTimeline(body []byte) ([]*domain.Tweet, string) {
	root := gjson.ParseBytes(body)
	instructions := root.Get("data.user.result.timeline_v2.timeline.instructions")

	var tweets []*domain.Tweet
	var nextCursor string
	seen := map[string]struct{}{}

	addIfNew := func(t *domain.Tweet) {
		if t == nil || t.ID == "" {
			return
		}
		if _, ok := seen[t.ID]; ok {
			return
		}
		seen[t.ID] = struct{}{}
		tweets = append(tweets, t)
	}

	instructions.ForEach(func(_, instruction gjson.Result) bool {
		switch instruction.Get("type").String() {
		case "TimelineAddEntries":
			instruction.Get("entries").ForEach(func(_, entry gjson.Result) bool {
				entryID := entry.Get("entryId").String()
				switch {
				case strings.HasPrefix(entryID, "tweet-"):
					addIfNew(parseTweetEntry(entry))
				case strings.HasPrefix(entryID, "cursor-bottom-"):
					if v := entry.Get("content.value").String(); v != "" {
						nextCursor = v
					}
				case strings.HasPrefix(entryID, "profile-conversation-"), strings.HasPrefix(entryID, "homeConversation-"):
					entry.Get("content.items").ForEach(func(_, item gjson.Result) bool {
						addIfNew(parseTweetResult(item.Get("item.itemContent.tweet_results.result")))
						return true
					})
				}
				return true
			})
		case "TimelinePinEntry":
			addIfNew(parseTweetEntry(instruction.Get("entry")))
		}
		return true
	})

	return tweets, nextCursor
}

func parseTweetEntry(entry gjson.Result) *domain.Tweet {
	itemContent := entry.Get("content.itemContent")
	if itemContent.Get("promotedMetadata").Exists() {
		return nil // skip promoted content
	}
	return parseTweetResult(itemContent.Get("tweet_results.result"))
}

func parseTweetResult(result gjson.Result) *domain.Tweet {
	if !result.Exists() {
		return nil
	}

	typename := result.Get("__typename").String()
	if typename == "TweetWithVisibilityResults" {
		result = result.Get("tweet")
	}
	if typename == "TweetTombstone" || typename == "TweetUnavailable" {
		return nil
	}

	legacy := result.Get("legacy")
	if !legacy.Exists() {
		return nil
	}

	id := legacy.Get("id_str").String()
	if id == "" {
		id = result.Get("rest_id").String()
	}

	t := &domain.Tweet{
		ID:                id,
		Text:              extractFullText(result, legacy),
		CreatedAt:         parseTwitterDate(legacy.Get("created_at").String()),
		ConversationID:    legacy.Get("conversation_id_str").String(),
		InReplyToID:       legacy.Get("in_reply_to_status_id_str").String(),
		InReplyToUsername: legacy.Get("in_reply_to_screen_name").String(),
		ReplyCount:        int(legacy.Get("reply_count").Int()),
		RetweetCount:      int(legacy.Get("retweet_count").Int()),
		LikeCount:         int(legacy.Get("favorite_count").Int()),
		QuoteCount:        int(legacy.Get("quote_count").Int()),
		BookmarkCount:     int(legacy.Get("bookmark_count").Int()),
		ViewCount:         int(result.Get("views.count").Int()),
	}

	userResult := result.Get("core.user_results.result")
	t.UserID = userResult.Get("rest_id").String()
	t.Username = userResult.Get("legacy.screen_name").String()
	t.DisplayName = userResult.Get("legacy.name").String()
	if t.InReplyToID != "" {
		t.InReplyToUserID = replyTargetUserID(legacy, t)
	}

	t.URLs = extractURLs(legacy, id)
	t.Media = extractMedia(legacy)

	if retweeted := legacy.Get("retweeted_status_result.result"); retweeted.Exists() {
		t.IsRetweet = true
	}
	if quoted := result.Get("quoted_status_result.result"); quoted.Exists() {
		t.IsQuote = true
		t.Quoted = parseTweetResult(quoted)
	}

	return t
}

// replyTargetUserID approximates the parent tweet's author id: X's GraphQL
// payload does not always carry in_reply_to_user_id directly on legacy, so
// a self-reply is recognized by username match, mirroring the original's
// in_reply_to_username == username comparison (client.py get_user_tweets).
func replyTargetUserID(legacy gjson.Result, t *domain.Tweet) string {
	if legacy.Get("in_reply_to_screen_name").String() == t.Username {
		return t.UserID
	}
	return ""
}

func extractFullText(result, legacy gjson.Result) string {
	noteText := result.Get("note_tweet.note_tweet_results.result.text").String()
	if noteText != "" {
		return noteText
	}
	return legacy.Get("full_text").String()
}

// extractURLs pulls expanded external URLs from entities.urls, dropping the
// tweet's own status permalink but keeping quoted-tweet permalinks.
func extractURLs(legacy gjson.Result, selfID string) []string {
	var urls []string
	legacy.Get("entities.urls").ForEach(func(_, u gjson.Result) bool {
		expanded := u.Get("expanded_url").String()
		if expanded == "" {
			return true
		}
		if strings.Contains(expanded, "/status/") && (strings.Contains(expanded, "x.com") || strings.Contains(expanded, "twitter.com")) {
			parts := strings.SplitN(expanded, "/status/", 2)
			if len(parts) == 2 {
				id := strings.SplitN(parts[1], "?", 2)[0]
				if id == selfID {
					return true // self-link, drop
				}
			}
		}
		urls = append(urls, expanded)
		return true
	})
	return urls
}

func extractMedia(legacy gjson.Result) []domain.TweetMedia {
	var media []domain.TweetMedia
	legacy.Get("extended_entities.media").ForEach(func(_, item gjson.Result) bool {
		m := domain.TweetMedia{
			Alt: item.Get("ext_alt_text").String(),
		}
		switch item.Get("type").String() {
		case "photo":
			m.Type = domain.MediaPhoto
			m.URL = item.Get("media_url_https").String()
		case "video", "animated_gif":
			if item.Get("type").String() == "video" {
				m.Type = domain.MediaVideo
			} else {
				m.Type = domain.MediaGIF
			}
			m.URL = bestMP4Variant(item.Get("video_info.variants"))
		}
		media = append(media, m)
		return true
	})
	return media
}

func bestMP4Variant(variants gjson.Result) string {
	var bestURL string
	var bestBitrate int64 = -1
	variants.ForEach(func(_, v gjson.Result) bool {
		if v.Get("content_type").String() != "video/mp4" {
			return true
		}
		if br := v.Get("bitrate").Int(); br > bestBitrate {
			bestBitrate = br
			bestURL = v.Get("url").String()
		}
		return true
	})
	return bestURL
}

func parseTwitterDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(twitterDateFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

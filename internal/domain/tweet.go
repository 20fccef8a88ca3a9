package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaType enumerates the microblog media kinds the parser recognizes.
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
	MediaGIF   MediaType = "gif"
)

// TweetMedia is a single media attachment on a Tweet.
type TweetMedia struct {
	Type MediaType
	URL  string
	Alt  string
}

// Tweet is the microblog-specific projection, internal to the scraper.
// It is never queued directly; ToPost projects it into a domain.Post on
// egress from the scraper.
type Tweet struct {
	ID          string
	UserID      string
	Username    string
	DisplayName string

	Text      string
	CreatedAt time.Time

	ReplyCount    int
	RetweetCount  int
	LikeCount     int
	ViewCount     int
	BookmarkCount int
	QuoteCount    int

	URLs  []string
	Media []TweetMedia

	IsRetweet bool
	IsQuote   bool
	Quoted    *Tweet

	InReplyToID       string
	InReplyToUserID   string
	InReplyToUsername string
	ConversationID    string
}

// IsSelfReply reports whether this tweet replies to the same user's own
// earlier tweet — such threads are always retained even when
// include_replies is false.
func (t *Tweet) IsSelfReply() bool {
	return t.InReplyToID != "" && t.InReplyToUserID == t.UserID
}

func (t *Tweet) IsReply() bool { return t.InReplyToID != "" }

// Permalink is the canonical status URL.
func (t *Tweet) Permalink() string {
	return fmt.Sprintf("https://x.com/%s/status/%s", t.Username, t.ID)
}

func (t *Tweet) DateStr() string {
	if t.CreatedAt.IsZero() {
		return ""
	}
	return t.CreatedAt.UTC().Format("2006-01-02")
}

// ToPost projects the tweet into a Post record with SourceType=Microblog.
// ExtraURLs is seeded from the tweet's own URLs plus the quoted tweet's URLs.
func (t *Tweet) ToPost(sourceName string) *Post {
	title := t.Text
	if len(title) > 100 {
		title = title[:100]
	}
	if title == "" {
		title = "(No text)"
	}

	p := &Post{
		Title:      title,
		Date:       t.DateStr(),
		Link:       t.Permalink(),
		SourceType: SourceMicroblog,
		SourceName: sourceName,
		Content:    t.buildContent(),
	}

	seen := make(map[string]struct{}, len(t.URLs))
	for _, u := range t.URLs {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		p.ExtraURLs = append(p.ExtraURLs, u)
	}
	if t.Quoted != nil {
		for _, u := range t.Quoted.URLs {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			p.ExtraURLs = append(p.ExtraURLs, u)
		}
	}
	return p
}

func (t *Tweet) buildContent() string {
	var b strings.Builder
	b.WriteString(t.Text)
	if t.Quoted != nil {
		b.WriteString("\n\nQuoted @")
		b.WriteString(t.Quoted.Username)
		b.WriteString(": ")
		b.WriteString(t.Quoted.Text)
	}
	return b.String()
}

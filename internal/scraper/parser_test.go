package scraper

import "testing"

func tweetEntryJSON(id, screenName, text string) string {
	return `{
		"entryId": "tweet-` + id + `",
		"content": {
			"itemContent": {
				"tweet_results": {
					"result": {
						"__typename": "Tweet",
						"rest_id": "` + id + `",
						"core": {
							"user_results": {
								"result": {
									"rest_id": "u1",
									"legacy": {"screen_name": "` + screenName + `", "name": "Display"}
								}
							}
						},
						"legacy": {
							"id_str": "` + id + `",
							"full_text": "` + text + `",
							"created_at": "Mon Jan 02 15:04:05 +0000 2026"
						}
					}
				}
			}
		}
	}`
}

func TestParseTimelineBasic(t *testing.T) {
	body := `{
		"data": {"user": {"result": {"timeline_v2": {"timeline": {"instructions": [
			{"type": "TimelineAddEntries", "entries": [
				` + tweetEntryJSON("1", "acct", "hello") + `,
				{"entryId": "cursor-bottom-1", "content": {"value": "CURSOR123"}}
			]}
		]}}}}}
	}`

	tweets, cursor := ParseTimeline([]byte(body))

	if len(tweets) != 1 {
		t.Fatalf("got %d tweets, want 1", len(tweets))
	}
	if tweets[0].ID != "1" || tweets[0].Text != "hello" {
		t.Errorf("unexpected tweet: %+v", tweets[0])
	}
	if cursor != "CURSOR123" {
		t.Errorf("got cursor %q, want CURSOR123", cursor)
	}
}

func TestParseTimelineDedupesPinnedAndAddEntries(t *testing.T) {
	body := `{
		"data": {"user": {"result": {"timeline_v2": {"timeline": {"instructions": [
			{"type": "TimelinePinEntry", "entry": ` + tweetEntryJSON("1", "acct", "pinned") + `},
			{"type": "TimelineAddEntries", "entries": [
				` + tweetEntryJSON("1", "acct", "pinned") + `,
				` + tweetEntryJSON("2", "acct", "second") + `
			]}
		]}}}}}
	}`

	tweets, _ := ParseTimeline([]byte(body))

	if len(tweets) != 2 {
		t.Fatalf("got %d tweets, want 2 (deduped)", len(tweets))
	}
}

func TestParseTimelineIdempotent(t *testing.T) {
	body := []byte(`{
		"data": {"user": {"result": {"timeline_v2": {"timeline": {"instructions": [
			{"type": "TimelineAddEntries", "entries": [` + tweetEntryJSON("1", "acct", "hi") + `]}
		]}}}}}
	}`)

	first, firstCursor := ParseTimeline(body)
	second, secondCursor := ParseTimeline(body)

	if len(first) != len(second) || firstCursor != secondCursor {
		t.Fatal("parsing the same page twice must yield identical results")
	}
	if first[0].ID != second[0].ID {
		t.Fatal("parsed tweet ids diverged between identical parses")
	}
}

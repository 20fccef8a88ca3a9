package organizer

import (
	"fmt"
	"strings"
)

const systemPrompt = `You classify one piece of content for a product-intelligence archive.
Given the content below, return exactly one JSON object with these fields:
{"event": "one-line headline", "category": "one of the allowed categories",
 "domain": "one of the allowed domains", "quality_score": 0-5,
 "quality_reason": "short justification", "key_info": ["up to 10 bullet points"],
 "detail": "a few paragraphs of synthesis"}

Rules:
- quality_score must be an integer 0 through 5, where 5 is highly novel and actionable.
- domain must be exactly one of the allowed domains, or "Others" if none fit.
- category must be exactly one of the allowed categories.
- key_info holds at most 10 short items.
- Return only the JSON object, no markdown fences, no commentary.`

func buildUserPrompt(title, date, sourceName, content, extraContent string, allowedDomains, allowedCategories []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Date: %s\n", date)
	fmt.Fprintf(&b, "Source: %s\n", sourceName)
	fmt.Fprintf(&b, "Allowed domains: %s\n", strings.Join(allowedDomains, ", "))
	fmt.Fprintf(&b, "Allowed categories: %s\n", strings.Join(allowedCategories, ", "))
	fmt.Fprintf(&b, "\nContent:\n%s\n", content)
	if extraContent != "" {
		fmt.Fprintf(&b, "\nAdditional context:\n%s\n", extraContent)
	}
	return b.String()
}

// cleanCompletion strips the markdown code fences LLMs sometimes wrap JSON
// in, mirroring the corpus's response-cleanup pattern.
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

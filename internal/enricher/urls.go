package enricher

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// selfLinkDomains maps a source_type to the hosts (matched exactly or as a
// parent domain) that identify the originating platform's own permalinks.
var selfLinkDomains = map[string][]string{
	"Microblog": {"twitter.com", "x.com", "t.co", "pic.twitter.com"},
}

var videoHostFragments = []string{
	"youtube.com", "youtu.be", "www.youtube.com", "m.youtube.com",
	"video.twimg.com",
}

// ExtractURLs finds every http(s) URL in text, deduplicated and in
// first-seen order, mirroring original_source's LinkExtractor.extract_urls.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	matches := urlPattern.FindAllString(text, -1)

	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FilterSelfLinks drops any URL whose host matches sourceType's own
// self-link pattern.
func FilterSelfLinks(urls []string, sourceType string) []string {
	patterns := selfLinkDomains[sourceType]
	if len(patterns) == 0 {
		return urls
	}
	var out []string
	for _, u := range urls {
		if isSelfLink(u, patterns) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func isSelfLink(rawURL string, patterns []string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, p := range patterns {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// IsVideoURL reports whether url points at a recognized video host.
func IsVideoURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, frag := range videoHostFragments {
		if strings.Contains(host, frag) {
			return true
		}
	}
	return false
}

package writer

import (
	"fmt"
	"strings"

	"github.com/scwf/prod-scout/internal/domain"
)

// renderMarkdown produces the canonical per-post document, matching the
// fixed heading/field layout every reader and downstream tool expects.
func renderMarkdown(p *domain.Post) string {
	var b strings.Builder

	event := p.Event
	if event == "" {
		event = p.Title
	}

	fmt.Fprintf(&b, "# %s\n\n", event)
	fmt.Fprintf(&b, "- **Date**: %s\n", p.Date)
	fmt.Fprintf(&b, "- **Category**: %s\n", p.Category)
	fmt.Fprintf(&b, "- **Domain**: %s\n", p.Domain)
	fmt.Fprintf(&b, "- **Quality**: %s (%d/5)\n", stars(p.QualityScore), p.QualityScore)
	fmt.Fprintf(&b, "- **Reason**: %s\n", p.QualityReason)
	fmt.Fprintf(&b, "- **Source_Type**: %s\n", p.SourceType)
	fmt.Fprintf(&b, "- **Source**: %s\n", p.SourceName)
	fmt.Fprintf(&b, "- **Link**: %s\n\n", p.Link)

	b.WriteString("## Key Info\n")
	b.WriteString(renderKeyInfo(p.KeyInfo))
	b.WriteString("\n\n")

	b.WriteString("## Details\n")
	b.WriteString(p.Detail)
	b.WriteString("\n")

	return b.String()
}

func renderKeyInfo(items []string) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(parts, "<br>")
}

func stars(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	return strings.Repeat("★", score) + strings.Repeat("☆", 5-score)
}

package pipeline

import (
	"regexp"
	"strings"
)

// Sanitize normalizes the LLM's Markdown to the channel-neutral
// convention: `**x**` -> `*x*`, `#+ X` -> `*X*`, `[label](url)` ->
// `label: url`, trim. Links rewrite before bold so a bold link label
// keeps its text.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	text = headingRE.ReplaceAllString(text, "*$1*")
	text = linkRE.ReplaceAllString(text, "$1: $2")
	text = boldRE.ReplaceAllString(text, "*$1*")

	return strings.TrimSpace(text)
}

var (
	headingRE = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	linkRE    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	boldRE    = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

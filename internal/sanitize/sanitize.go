// Package sanitize cleans generated text before it is sent back to the
// chat platform: reasoning spans and echoed speaker labels are stripped,
// and the platform length ceiling is enforced.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// Reasoning models interleave their visible answer with delimited
	// thinking spans; both markers and contents are dropped.
	reasoningSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)
	reasoningTail = regexp.MustCompile(`(?s)<think>.*$`)

	// Fallback for replies echoing the history convention with a label
	// other than the model id.
	genericLabel = regexp.MustCompile(`^\[[^\[\]\n]+\]:\s*`)
)

// Sanitize returns text safe to send: reasoning spans removed, a leading
// "[label]:" prefix stripped (exact model id first, generic bracket label
// as fallback), and the result truncated to at most maxLen runes. An empty
// result is valid and means there is nothing to send.
func Sanitize(raw, modelID string, maxLen int) string {
	text := reasoningSpan.ReplaceAllString(raw, "")
	text = reasoningTail.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if modelID != "" {
		if stripped, ok := strings.CutPrefix(text, "["+modelID+"]:"); ok {
			text = strings.TrimSpace(stripped)
		} else {
			text = strings.TrimSpace(genericLabel.ReplaceAllString(text, ""))
		}
	} else {
		text = strings.TrimSpace(genericLabel.ReplaceAllString(text, ""))
	}

	if maxLen > 0 {
		if r := []rune(text); len(r) > maxLen {
			text = strings.TrimSpace(string(r[:maxLen]))
		}
	}

	return text
}

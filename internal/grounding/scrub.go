package grounding

import (
	"regexp"
	"strings"
)

// LeakReplacement replaces any response that echoes the system prompt.
const LeakReplacement = "I apologize, but I encountered an error. Please try again."

// leakMarkers are phrases that only appear in the assistant's own instructions.
var leakMarkers = []string{
	"critical: how to use tools",
	"current user id:",
	"backend tools",
	"frontend tools",
}

var (
	scriptBlockRe  = regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`)
	scriptTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*script\b[^>]*>?`)
	jsSchemeRe     = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon(?:abort|blur|change|click|dblclick|error|focus|input|keydown|keypress|keyup|load|` +
		`mousedown|mouseenter|mouseleave|mousemove|mouseout|mouseover|mouseup|pointerdown|pointerup|submit|toggle|unload)` +
		`\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)
)

// ScrubResult describes what Scrub changed.
type ScrubResult struct {
	Text    string
	Leaked  bool
	Removed int
}

// Scrub removes prompt leakage and markup that could execute in the client.
func Scrub(text string) ScrubResult {
	lower := strings.ToLower(text)
	for _, marker := range leakMarkers {
		if strings.Contains(lower, marker) {
			return ScrubResult{Text: LeakReplacement, Leaked: true}
		}
	}

	removed := 0
	for _, re := range []*regexp.Regexp{scriptBlockRe, scriptTagRe, jsSchemeRe, eventHandlerRe} {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			removed++
			return ""
		})
	}
	return ScrubResult{Text: text, Removed: removed}
}

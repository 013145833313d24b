package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	speakerLabelRegex = regexp.MustCompile(`(?m)^[A-Za-z]+(\s*\([^)]+\))?:\s*`)
	whitespaceRegex   = regexp.MustCompile(`[ \t]+`)
)

// StripSpeakerLabels removes speaker labels like "Guide:" or "Anna (historian):" from scripts.
func StripSpeakerLabels(script string) string {
	return speakerLabelRegex.ReplaceAllString(script, "")
}

// PrepareText cleans narration for synthesis and caps it at MaxTextLength runes.
func PrepareText(text string) string {
	text = StripSpeakerLabels(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:MaxTextLength]))
}

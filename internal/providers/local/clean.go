package local

import (
	"regexp"
	"strings"
)

var (
	timestampPattern = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}\]`)
	bracketNoise     = regexp.MustCompile(`(?i)\[(?:MUSIC|APPLAUSE|LAUGHTER|INAUDIBLE|NOISE|CROSSTALK|SILENCE|BLANK_AUDIO)\]`)
	parenNoise       = regexp.MustCompile(`(?i)\([^)]*(?:music|noise|applause|laughter|silence)[^)]*\)`)
	spaceRun         = regexp.MustCompile(`\s+`)
)

// cleanText strips timestamps and noise markers a local recognizer may emit.
func cleanText(text string) string {
	text = timestampPattern.ReplaceAllString(text, " ")
	text = bracketNoise.ReplaceAllString(text, " ")
	text = parenNoise.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

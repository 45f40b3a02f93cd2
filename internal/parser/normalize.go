package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(` {3,}`)
)

// cleanText collapses excessive whitespace while keeping paragraph breaks,
// and strips NUL bytes that some extractors leak.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// decodeTextBytes interprets data as UTF-8 when valid, otherwise falls back
// to Latin-1 so legacy exports still load.
func decodeTextBytes(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

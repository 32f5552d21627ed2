package fileprocessing

import (
	"regexp"
	"strings"
	"unicode"
)

// Chunk splits text on word boundaries into pieces of at most size bytes.
// A single word longer than size becomes its own chunk.
func Chunk(text string, size int) []string {
	var chunks []string
	var current strings.Builder

	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > size {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(word)
		current.WriteString(" ")
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

var (
	whitespace = regexp.MustCompile(`\s+`)

	problemChars = strings.NewReplacer(
		"\u0000", "",
		"\ufffd", "",
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\u00a0", " ",
		"\u2028", "\n",
		"\u2029", "\n",
	)

	safeSet = &unicode.RangeTable{
		R16: []unicode.Range16{
			{Lo: 0x0020, Hi: 0x007E, Stride: 1},
			{Lo: 0x00A0, Hi: 0x00FF, Stride: 1},
			{Lo: 0x0100, Hi: 0x017F, Stride: 1},
			{Lo: 0x0180, Hi: 0x024F, Stride: 1},
			{Lo: 0x2000, Hi: 0x22FF, Stride: 1},
		},
	}
)

// ProcessText drops control and out-of-range characters and collapses all
// whitespace to single spaces.
func ProcessText(raw string) string {
	cleaned := problemChars.Replace(raw)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.Is(safeSet, r) && unicode.IsPrint(r) {
			return r
		}
		return -1
	}, cleaned)
	return strings.TrimSpace(whitespace.ReplaceAllString(cleaned, " "))
}

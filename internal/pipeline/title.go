package pipeline

import (
	"strings"
	"unicode"
)

// CleanTitle приводит ответ модели к названию: первая непустая строка
// без префикса "Title:", кавычек и пунктуации по краям.
func CleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if len(line) >= 6 && strings.EqualFold(line[:6], "title:") {
		line = line[6:]
	}
	line = strings.TrimFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '*'
	})
	return strings.Join(strings.Fields(line), " ")
}

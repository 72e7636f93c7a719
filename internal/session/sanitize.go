package session

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// ContainsMarkup reports whether raw holds HTML elements or comments. Plain
// comparisons such as "A<B" or "x < y > z" and entity text are not markup.
func ContainsMarkup(raw string) bool {
	if !strings.Contains(raw, "<") || !strings.Contains(raw, ">") {
		return false
	}
	p := textSanitizer()
	// the second form has every "<" escaped, so it can only hold text
	asText := html.EscapeString(html.UnescapeString(raw))
	return p.Sanitize(raw) != p.Sanitize(asText)
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

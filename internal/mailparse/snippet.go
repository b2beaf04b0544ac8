package mailparse

import (
	"regexp"
	"strings"

	"github.com/brandon/mail-engine/pkg/types"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// ExtractText strips HTML down to readable text. Deliberately naive:
// good enough for snippets, not for rendering.
func ExtractText(html string) string {
	s := styleBlockRe.ReplaceAllString(html, "")
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Snippet derives a short preview from the available bodies. The
// result is never empty and never longer than the snippet ceiling.
func Snippet(text, html string) string {
	source := strings.TrimSpace(text)
	if source == "" && html != "" {
		source = ExtractText(html)
	}
	source = whitespaceRe.ReplaceAllString(strings.TrimSpace(source), " ")
	if source == "" {
		return types.SnippetPlaceholder
	}
	runes := []rune(source)
	if len(runes) > types.MaxSnippetChars {
		return string(runes[:types.MaxSnippetChars])
	}
	return source
}

package processor

import (
	"regexp"
	"strings"
)

// Go's regexp has no backreferences, so each stripped block element gets its own pattern.
var (
	blockPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`),
		regexp.MustCompile(`(?is)<nav\b[^>]*>.*?</nav\s*>`),
		regexp.MustCompile(`(?is)<header\b[^>]*>.*?</header\s*>`),
		regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer\s*>`),
		regexp.MustCompile(`(?is)<aside\b[^>]*>.*?</aside\s*>`),
	}
	commentPattern    = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	entityPattern     = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ExtractText reduces an HTML document to plain text: boilerplate blocks (script, style,
// nav, header, footer, aside) are dropped with their content, remaining tags and entities
// become spaces and whitespace runs collapse to one space.
func ExtractText(html string) string {
	text := commentPattern.ReplaceAllString(html, " ")
	for _, p := range blockPatterns {
		text = p.ReplaceAllString(text, " ")
	}
	text = tagPattern.ReplaceAllString(text, " ")
	text = entityPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

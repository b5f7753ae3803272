// Package sanitize prepares post text for the translation provider and restores it afterwards.
//
// URLs are swapped for positional placeholders (<URL0>, <URL1>, ...) before the text leaves the
// process, so the model cannot rewrite them, and are put back verbatim once the translation
// returns.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	boldPattern         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)\)*`)
)

// Tokens maps a placeholder token to the URL it replaced.
type Tokens map[string]string

// Token returns the placeholder used for the i-th distinct URL.
func Token(i int) string {
	return fmt.Sprintf("<URL%d>", i)
}

// Mask replaces every URL in text with a placeholder. Distinct URLs are numbered in order of
// first appearance; repeated occurrences of the same URL share one token.
func Mask(text string) (string, Tokens) {
	tokens := make(Tokens)
	byURL := make(map[string]string)

	masked := urlPattern.ReplaceAllStringFunc(text, func(url string) string {
		if token, ok := byURL[url]; ok {
			return token
		}
		token := Token(len(byURL))
		byURL[url] = token
		tokens[token] = url
		return token
	})
	return masked, tokens
}

// Unmask substitutes every known token in text with its URL in a single pass.
func Unmask(text string, tokens Tokens) string {
	if len(tokens) == 0 {
		return text
	}
	pairs := make([]string, 0, len(tokens)*2)
	for token, url := range tokens {
		pairs = append(pairs, token, url)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// NormalizeBold converts **markdown bold** into <b>HTML bold</b>.
func NormalizeBold(text string) string {
	return boldPattern.ReplaceAllString(text, "<b>$1</b>")
}

// MarkdownLinksToAnchors rewrites [label](https://...) links the model may emit into anchors.
func MarkdownLinksToAnchors(text string) string {
	return markdownLinkPattern.ReplaceAllString(text, `<a href="$2">$1</a>`)
}

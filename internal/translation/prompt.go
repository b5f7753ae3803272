package translation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultTargetLanguage is used when TARGET_LANGUAGE is not set.
const DefaultTargetLanguage = "ja"

// defaultStyleHints are applied when no explicit style hint is configured.
var defaultStyleHints = map[string]string{
	"ja": "natural-sounding, JLPT N3 level",
}

const promptTemplate = `You are an expert translator, converting text for a Telegram channel into %s%s.
Your main task is to translate the text while perfectly formatting it for Telegram's HTML parse mode.

**CRITICAL INSTRUCTIONS:**

1.  **Handle Links (` + "`<URL...>`" + `):**
    - The input contains placeholders like ` + "`<URL0>`, `<URL1>`" + `, etc. These are located near the words they correspond to.
    - In your translation, you MUST identify the most logical word or phrase to be the clickable link text.
    - You MUST format these links using HTML ` + "`<a>`" + ` tags. Example: ` + "`<a href=\"<URL0>\">link text</a>`" + `.
    - **NEVER** leave a ` + "`<URL...>`" + ` token as plain text in the output. It must ONLY exist inside an ` + "`href`" + ` attribute.

2.  **Handle Formatting:**
    - The input may use ` + "`<b>text</b>`" + ` for bold. Preserve this HTML tag in your translation around the corresponding translated words.

3.  **Output:**
    - Your entire output must be ONLY the final, translated %s text. Do not add any extra explanations or greetings.

**Input text to translate:**
"""%s"""`

// PromptBuilder renders the translation instruction for one target language.
type PromptBuilder struct {
	tag       language.Tag
	name      string
	styleHint string
}

// NewPromptBuilder parses lang (a BCP 47 tag) and resolves its English display name.
// An empty styleHint falls back to the built-in hint for the language, if any.
func NewPromptBuilder(lang, styleHint string) (*PromptBuilder, error) {
	if strings.TrimSpace(lang) == "" {
		lang = DefaultTargetLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", lang, err)
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		name = tag.String()
	}
	if styleHint == "" {
		base, _ := tag.Base()
		styleHint = defaultStyleHints[base.String()]
	}
	return &PromptBuilder{tag: tag, name: name, styleHint: styleHint}, nil
}

// Language returns the parsed target language.
func (b *PromptBuilder) Language() language.Tag {
	return b.tag
}

// LanguageName returns the English name of the target language, e.g. "Japanese".
func (b *PromptBuilder) LanguageName() string {
	return b.name
}

// Build embeds masked text into the instruction prompt.
func (b *PromptBuilder) Build(masked string) string {
	style := ""
	if b.styleHint != "" {
		style = " (" + b.styleHint + ")"
	}
	return fmt.Sprintf(promptTemplate, b.name, style, b.name, masked)
}

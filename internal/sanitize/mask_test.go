package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskRoundTrip(t *testing.T) {
	cases := map[string]string{
		"no urls":        "Просто текст без ссылок.",
		"empty":          "",
		"single":         "Проект доступен на https://github.com/QwenLM/Qwen3 сегодня",
		"several":        "a https://a.example/1 b http://b.example/2?x=1 c https://c.example/#frag",
		"duplicate":      "https://dup.example/x then https://dup.example/x and again https://dup.example/x",
		"prefix overlap": "https://a.example and https://a.example/longer and https://a.example",
		"adjacent":       "https://one.example\nhttps://two.example",
		"markup":         "<b>Qwen3-Omni</b> (https://chat.qwen.ai/) на GitHub (https://github.com/QwenLM)",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			masked, tokens := Mask(text)
			assert.NotContains(t, masked, "http://")
			assert.NotContains(t, masked, "https://")
			assert.Equal(t, text, Unmask(masked, tokens))
		})
	}
}

func TestMaskNumbersByFirstAppearance(t *testing.T) {
	masked, tokens := Mask("x https://b.example y https://a.example z https://b.example")

	assert.Equal(t, "x <URL0> y <URL1> z <URL0>", masked)
	assert.Equal(t, Tokens{
		"<URL0>": "https://b.example",
		"<URL1>": "https://a.example",
	}, tokens)
}

func TestUnmaskLeavesNoKnownTokens(t *testing.T) {
	_, tokens := Mask("https://a.example https://b.example https://c.example")
	require.Len(t, tokens, 3)

	// The model may reorder or repeat placeholders; every one must be restored.
	translated := `<a href="<URL2>">c</a> <a href="<URL0>">a</a> <URL0> <URL1>`
	out := Unmask(translated, tokens)

	for token := range tokens {
		assert.NotContains(t, out, token)
	}
	assert.Equal(t, `<a href="https://c.example">c</a> <a href="https://a.example">a</a> https://a.example https://b.example`, out)
}

func TestUnmaskWithManyTokens(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("see https://site.example/")
		b.WriteString(strings.Repeat("p", i+1))
		b.WriteString(" ")
	}
	text := b.String()

	masked, tokens := Mask(text)
	assert.Contains(t, masked, "<URL11>")
	assert.Equal(t, text, Unmask(masked, tokens))
}

func TestNormalizeBold(t *testing.T) {
	assert.Equal(t, "<b>Важно</b>: и <b>ещё</b>", NormalizeBold("**Важно**: и **ещё**"))
	assert.Equal(t, "no bold here", NormalizeBold("no bold here"))
}

func TestMarkdownLinksToAnchors(t *testing.T) {
	in := "公開中 [GitHub](https://github.com/QwenLM) です"
	assert.Equal(t, `公開中 <a href="https://github.com/QwenLM">GitHub</a> です`, MarkdownLinksToAnchors(in))

	anchor := `<a href="https://x.example">x</a>`
	assert.Equal(t, anchor, MarkdownLinksToAnchors(anchor))
}

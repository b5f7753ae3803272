package relay

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"

	"telegram-translator/internal/sanitize"
)

func TestComposeBodyOrdersAndJoins(t *testing.T) {
	msgs := []telego.Message{
		{MessageID: 12, Caption: "  третий  "},
		{MessageID: 10, Caption: "первый"},
		{MessageID: 11},
		{MessageID: 13, Caption: "   "},
	}
	assert.Equal(t, "первый\n\nтретий", ComposeBody(msgs))
}

func TestComposeBodyPrefersText(t *testing.T) {
	msgs := []telego.Message{{MessageID: 1, Text: "текст", Caption: "подпись"}}
	assert.Equal(t, "текст", ComposeBody(msgs))
}

func TestComposeBodyEmpty(t *testing.T) {
	assert.Equal(t, "", ComposeBody(nil))
	assert.Equal(t, "", ComposeBody([]telego.Message{{MessageID: 1}}))
}

func TestComposeBodyRendersEntities(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []telego.MessageEntity
		want     string
	}{
		{
			name:     "bold",
			text:     "Новая модель Qwen3 вышла",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeBold, Offset: 13, Length: 5}},
			want:     "Новая модель **Qwen3** вышла",
		},
		{
			name:     "text link followed by space",
			text:     "Читайте статью сегодня",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeTextLink, Offset: 8, Length: 6, URL: "https://example.com/a"}},
			want:     "Читайте статью https://example.com/a сегодня",
		},
		{
			name:     "text link followed by punctuation",
			text:     "Читайте статью.",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeTextLink, Offset: 8, Length: 6, URL: "https://example.com/a"}},
			want:     "Читайте статью https://example.com/a .",
		},
		{
			name: "bold link",
			text: "See docs now",
			entities: []telego.MessageEntity{
				{Type: telego.EntityTypeBold, Offset: 4, Length: 4},
				{Type: telego.EntityTypeTextLink, Offset: 4, Length: 4, URL: "https://d.example"},
			},
			want: "See **docs** https://d.example now",
		},
		{
			name: "link listed before bold",
			text: "See docs now",
			entities: []telego.MessageEntity{
				{Type: telego.EntityTypeTextLink, Offset: 4, Length: 4, URL: "https://d.example"},
				{Type: telego.EntityTypeBold, Offset: 4, Length: 4},
			},
			want: "See **docs** https://d.example now",
		},
		{
			name: "link inside bold run",
			text: "Read the docs.",
			entities: []telego.MessageEntity{
				{Type: telego.EntityTypeTextLink, Offset: 9, Length: 4, URL: "https://d.example"},
				{Type: telego.EntityTypeBold, Offset: 0, Length: 13},
			},
			want: "**Read the docs** https://d.example .",
		},
		{
			name:     "offsets count utf16 units",
			text:     "🚀 Запуск",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeBold, Offset: 3, Length: 6}},
			want:     "🚀 **Запуск**",
		},
		{
			name:     "out of range entity ignored",
			text:     "short",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeBold, Offset: 3, Length: 10}},
			want:     "short",
		},
		{
			name:     "other entities ignored",
			text:     "#tag",
			entities: []telego.MessageEntity{{Type: telego.EntityTypeHashtag, Offset: 0, Length: 4}},
			want:     "#tag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []telego.Message{{MessageID: 1, Text: tt.text, Entities: tt.entities}}
			assert.Equal(t, tt.want, ComposeBody(msgs))
		})
	}
}

func TestComposeBodyKeepsURLsOutsideBold(t *testing.T) {
	orders := map[string][]telego.MessageEntity{
		"bold first": {
			{Type: telego.EntityTypeBold, Offset: 4, Length: 4},
			{Type: telego.EntityTypeTextLink, Offset: 4, Length: 4, URL: "https://d.example"},
		},
		"link first": {
			{Type: telego.EntityTypeTextLink, Offset: 4, Length: 4, URL: "https://d.example"},
			{Type: telego.EntityTypeBold, Offset: 4, Length: 4},
		},
	}
	for name, entities := range orders {
		t.Run(name, func(t *testing.T) {
			body := ComposeBody([]telego.Message{{MessageID: 1, Text: "See docs now", Entities: entities}})
			masked, tokens := sanitize.Mask(sanitize.NormalizeBold(body))

			assert.Equal(t, "See <b>docs</b> <URL0> now", masked)
			assert.Equal(t, "https://d.example", tokens["<URL0>"])
		})
	}
}

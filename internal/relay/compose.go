package relay

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/mymmrac/telego"
)

// ComposeBody joins the non-empty text of every message in ascending message id order,
// separated by a blank line.
func ComposeBody(msgs []telego.Message) string {
	sorted := append([]telego.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MessageID < sorted[j].MessageID })

	parts := make([]string, 0, len(sorted))
	for _, msg := range sorted {
		if text := strings.TrimSpace(messageText(msg)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func messageText(msg telego.Message) string {
	if msg.Text != "" {
		return renderEntities(msg.Text, msg.Entities)
	}
	return renderEntities(msg.Caption, msg.CaptionEntities)
}

// Insertions at the same offset are applied closing markers first, then by rank. Bold markers
// rank before link targets so a URL never ends up inside the bold run.
const (
	rankBold = iota
	rankLink
)

type insertion struct {
	at      int
	text    string
	closing bool
	rank    int
}

// renderEntities turns bold entities back into **markdown** and appends the target of hidden
// text links after their label, so both survive as plain text. Offsets are UTF-16 code units.
func renderEntities(text string, entities []telego.MessageEntity) string {
	if len(entities) == 0 {
		return text
	}
	units := utf16.Encode([]rune(text))

	var ins []insertion
	for _, e := range entities {
		start, end := e.Offset, e.Offset+e.Length
		if start < 0 || start >= end || end > len(units) {
			continue
		}
		switch e.Type {
		case telego.EntityTypeBold:
			ins = append(ins, insertion{at: start, text: "**", rank: rankBold}, insertion{at: end, text: "**", closing: true, rank: rankBold})
		case telego.EntityTypeTextLink:
			if e.URL == "" {
				continue
			}
			suffix := " " + e.URL
			if end < len(units) && !unicode.IsSpace(rune(units[end])) {
				suffix += " "
			}
			ins = append(ins, insertion{at: end, text: suffix, closing: true, rank: rankLink})
		}
	}
	if len(ins) == 0 {
		return text
	}

	sort.SliceStable(ins, func(i, j int) bool {
		if ins[i].at != ins[j].at {
			return ins[i].at < ins[j].at
		}
		if ins[i].closing != ins[j].closing {
			return ins[i].closing
		}
		return ins[i].rank < ins[j].rank
	})

	var b strings.Builder
	prev := 0
	for _, in := range ins {
		b.WriteString(string(utf16.Decode(units[prev:in.at])))
		b.WriteString(in.text)
		prev = in.at
	}
	b.WriteString(string(utf16.Decode(units[prev:])))
	return b.String()
}

package telegoapi

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// ParseChatID converts a configured channel reference into a telego.ChatID. Numeric values
// (e.g. -1001234567890) are treated as chat ids, anything else as a public username with or
// without the leading '@'.
func ParseChatID(ref string) telego.ChatID {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return tu.ID(id)
	}
	return tu.Username("@" + strings.TrimPrefix(ref, "@"))
}

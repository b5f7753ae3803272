package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"telegram-translator/internal/logging"
)

//go:embed *.json
var localeFS embed.FS

// Message IDs
const (
	MsgRelayHeader = "MsgRelayHeader"
)

// DefaultLanguage is the language of the attribution header when none is configured.
const DefaultLanguage = "en"

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init initializes the i18n bundle by loading language files and setting the default language.
func Init(defaultLangCode string, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		logger.WithError(err).Warnf("Failed to parse default language code '%s', falling back to English", defaultLangCode)
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("failed to read embedded locales: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			logger.WithError(err).Warnf("Failed to load message file '%s'", entry.Name())
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no message files loaded from locales")
	}

	mu.Lock()
	bundle, defaultLanguage = b, tag
	mu.Unlock()
	logger.Debugf("i18n bundle initialized with %d file(s), default language %s", loaded, tag)
	return nil
}

// DefaultLanguageTag returns the configured default language tag.
func DefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences, falling back to the
// default language. Init must have been called.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		panic("locales: NewLocalizer called before Init")
	}
	return i18n.NewLocalizer(bundle, append(langPrefs, defaultLanguage.String())...)
}

// GetMessage retrieves and formats a message by its ID. If the message is missing it falls back
// to English and finally to the message ID itself.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	msg, err := localizer.Localize(cfg)
	if err == nil {
		return msg
	}

	mu.RLock()
	b := bundle
	mu.RUnlock()
	if fallback, fbErr := i18n.NewLocalizer(b, language.English.String()).Localize(cfg); fbErr == nil {
		return fallback
	}
	return msgID
}

// RelayHeader renders the attribution line prepended to relayed posts.
func RelayHeader(localizer *i18n.Localizer, source, postID string) string {
	if !strings.HasPrefix(source, "-") && !strings.HasPrefix(source, "@") {
		source = "@" + source
	}
	return GetMessage(localizer, MsgRelayHeader, map[string]interface{}{
		"Source": source,
		"PostID": postID,
	})
}

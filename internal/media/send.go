package media

import (
	"context"
	"fmt"
	"html"
	"os"
	"regexp"
	"unicode/utf16"

	"github.com/getsentry/sentry-go"
	"github.com/h2non/filetype"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"telegram-translator/internal/logging"
	"telegram-translator/pkg/telegoapi"
)

const (
	// MaxCaptionLength is the Bot API limit for media captions.
	MaxCaptionLength = 1024
	// MaxAlbumSize is the Bot API limit for one sendMediaGroup call.
	MaxAlbumSize = 10
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// captionLength measures caption the way Telegram does: UTF-16 code units of the text left
// after HTML markup is parsed away.
func captionLength(caption string) int {
	visible := html.UnescapeString(htmlTagPattern.ReplaceAllString(caption, ""))
	return len(utf16.Encode([]rune(visible)))
}

type kind int

const (
	kindDocument kind = iota
	kindPhoto
	kindVideo
)

func detectKind(path string) kind {
	t, err := filetype.MatchFile(path)
	if err != nil || t == filetype.Unknown {
		return kindDocument
	}
	switch {
	case t.MIME.Type == "image" && t.Extension != "gif":
		return kindPhoto
	case t.MIME.Type == "video":
		return kindVideo
	default:
		return kindDocument
	}
}

// Send delivers caption with the given local files to dest: a text message when there are no
// files, a single attachment for one file and albums otherwise. Captions too long for a media
// message are sent as a separate text message after the media. It reports whether delivery
// succeeded.
func (r *Relay) Send(ctx context.Context, dest string, paths []string, caption string) bool {
	log := r.logger.WithFields(logging.Fields{"destination": dest, "media": len(paths)})
	chatID := telegoapi.ParseChatID(dest)

	mediaCaption := caption
	if len(paths) > 0 && captionLength(caption) > MaxCaptionLength {
		mediaCaption = ""
	}

	var err error
	switch len(paths) {
	case 0:
		err = r.sendText(ctx, chatID, caption)
	case 1:
		err = r.sendSingle(ctx, chatID, paths[0], mediaCaption)
	default:
		err = r.sendAlbum(ctx, chatID, paths, mediaCaption)
	}
	if err == nil && len(paths) > 0 && mediaCaption == "" && caption != "" {
		err = r.sendText(ctx, chatID, caption)
	}

	if err != nil {
		log.WithError(err).Warn("Send failed")
		sentry.CaptureException(fmt.Errorf("send to %s failed: %w", dest, err))
		return false
	}
	log.Debug("Send succeeded")
	return true
}

func (r *Relay) sendText(ctx context.Context, chatID telego.ChatID, text string) error {
	params := tu.Message(chatID, text).WithParseMode(telego.ModeHTML)
	return r.withRetry(ctx, "sendMessage", func() error {
		_, err := r.bot.SendMessage(ctx, params)
		return err
	})
}

func (r *Relay) sendSingle(ctx context.Context, chatID telego.ChatID, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch detectKind(path) {
	case kindPhoto:
		params := tu.Photo(chatID, tu.File(f))
		params.Caption, params.ParseMode = caption, telego.ModeHTML
		return r.withRetry(ctx, "sendPhoto", func() error {
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			_, err := r.bot.SendPhoto(ctx, params)
			return err
		})
	case kindVideo:
		params := tu.Video(chatID, tu.File(f))
		params.Caption, params.ParseMode = caption, telego.ModeHTML
		return r.withRetry(ctx, "sendVideo", func() error {
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			_, err := r.bot.SendVideo(ctx, params)
			return err
		})
	default:
		params := tu.Document(chatID, tu.File(f))
		params.Caption, params.ParseMode = caption, telego.ModeHTML
		return r.withRetry(ctx, "sendDocument", func() error {
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			_, err := r.bot.SendDocument(ctx, params)
			return err
		})
	}
}

// sendAlbum splits paths into albums of at most MaxAlbumSize items. Photos and videos can share
// an album; any other file turns the whole post into a document album.
func (r *Relay) sendAlbum(ctx context.Context, chatID telego.ChatID, paths []string, caption string) error {
	kinds := make([]kind, len(paths))
	asDocuments := false
	for i, p := range paths {
		kinds[i] = detectKind(p)
		if kinds[i] == kindDocument {
			asDocuments = true
		}
	}

	for start := 0; start < len(paths); start += MaxAlbumSize {
		end := start + MaxAlbumSize
		if end > len(paths) {
			end = len(paths)
		}
		chunkCaption := ""
		if start == 0 {
			chunkCaption = caption
		}
		if err := r.sendChunk(ctx, chatID, paths[start:end], kinds[start:end], asDocuments, chunkCaption); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) sendChunk(ctx context.Context, chatID telego.ChatID, paths []string, kinds []kind, asDocuments bool, caption string) error {
	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	media := make([]telego.InputMedia, 0, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		files = append(files, f)
		media = append(media, inputMedia(f, kinds[i], asDocuments, i == 0, caption))
	}

	if len(media) == 1 {
		// Telegram rejects single-item albums.
		return r.sendSingle(ctx, chatID, paths[0], caption)
	}

	params := tu.MediaGroup(chatID, media...)
	return r.withRetry(ctx, "sendMediaGroup", func() error {
		for _, f := range files {
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
		}
		_, err := r.bot.SendMediaGroup(ctx, params)
		return err
	})
}

func inputMedia(f *os.File, k kind, asDocument, first bool, caption string) telego.InputMedia {
	if !first {
		caption = ""
	}
	parseMode := ""
	if caption != "" {
		parseMode = telego.ModeHTML
	}
	file := tu.File(f)
	if asDocument {
		return &telego.InputMediaDocument{Type: telego.MediaTypeDocument, Media: file, Caption: caption, ParseMode: parseMode}
	}
	if k == kindVideo {
		return &telego.InputMediaVideo{Type: telego.MediaTypeVideo, Media: file, Caption: caption, ParseMode: parseMode}
	}
	return &telego.InputMediaPhoto{Type: telego.MediaTypePhoto, Media: file, Caption: caption, ParseMode: parseMode}
}

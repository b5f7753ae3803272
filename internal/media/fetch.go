package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/h2non/filetype"
	"github.com/mymmrac/telego"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"telegram-translator/internal/logging"
)

var unsafeNameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// attachment is the downloadable part of a message.
type attachment struct {
	fileID string
	name   string
}

// attachmentOf picks the file to relay from msg. Photos resolve to their largest size.
func attachmentOf(msg telego.Message) (attachment, bool) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height || (p.Width*p.Height == best.Width*best.Height && p.FileSize > best.FileSize) {
				best = p
			}
		}
		return attachment{fileID: best.FileID}, true
	case msg.Video != nil:
		return attachment{fileID: msg.Video.FileID, name: msg.Video.FileName}, true
	case msg.Animation != nil:
		return attachment{fileID: msg.Animation.FileID, name: msg.Animation.FileName}, true
	case msg.Document != nil:
		return attachment{fileID: msg.Document.FileID, name: msg.Document.FileName}, true
	case msg.Audio != nil:
		return attachment{fileID: msg.Audio.FileID, name: msg.Audio.FileName}, true
	case msg.Voice != nil:
		return attachment{fileID: msg.Voice.FileID}, true
	}
	return attachment{}, false
}

// HasMedia reports whether msg carries something Fetch can download.
func HasMedia(msg telego.Message) bool {
	_, ok := attachmentOf(msg)
	return ok
}

// Fetch downloads the media of every message in msgs into the scratch directory and returns
// the local paths in message order. Messages whose media cannot be fetched are skipped.
func (r *Relay) Fetch(ctx context.Context, source, postID string, msgs []telego.Message) []string {
	prefix := unsafeNameChars.ReplaceAllString(source+"_"+postID, "")
	var paths []string
	for _, msg := range msgs {
		att, ok := attachmentOf(msg)
		if !ok {
			continue
		}
		path, err := r.fetchOne(ctx, prefix, msg.MessageID, att)
		if err != nil {
			r.logger.WithError(err).WithFields(logging.Fields{
				"source":     source,
				"post":       postID,
				"message_id": msg.MessageID,
			}).Warn("Media download failed, skipping")
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func (r *Relay) fetchOne(ctx context.Context, prefix string, messageID int, att attachment) (string, error) {
	file, err := r.bot.GetFile(ctx, &telego.GetFileParams{FileID: att.fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file %s has no download path", att.fileID)
	}

	data, err := r.download(r.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	ext := filepath.Ext(att.name)
	if ext == "" {
		ext = filepath.Ext(file.FilePath)
	}
	if ext == "" {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			ext = "." + kind.Extension
		}
	}

	id, err := gonanoid.New(10)
	if err != nil {
		return "", fmt.Errorf("generate file name: %w", err)
	}
	name := prefix + "_" + strconv.Itoa(messageID) + "_" + id + unsafeNameChars.ReplaceAllString(ext, "")
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
